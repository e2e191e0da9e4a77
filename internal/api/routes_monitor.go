package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/util"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// handleGetStatus returns the connection snapshot.
func (s *Server) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Stats())
}

type idEntry struct {
	protocol.Entry
	Name string `json:"name"`
}

// handleGetIDs lists the registered command and reply identifiers.
func (s *Server) handleGetIDs(c *gin.Context) {
	commands := make([]idEntry, 0)
	for _, e := range s.engine.Commands().Entries() {
		commands = append(commands, idEntry{Entry: e, Name: protocol.CommandName(e.ID)})
	}
	replies := make([]idEntry, 0)
	for _, e := range s.engine.Replies().Entries() {
		replies = append(replies, idEntry{Entry: e, Name: protocol.ReplyName(e.ID)})
	}

	c.JSON(http.StatusOK, gin.H{
		"commands": commands,
		"replies":  replies,
	})
}

// handleGetSessions returns the most recent sessions from the journal.
func (s *Server) handleGetSessions(c *gin.Context) {
	if s.opts.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal is disabled"})
		return
	}

	sessions, err := s.opts.Journal.Recent(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleGetChat returns the most recent chat lines from the journal.
func (s *Server) handleGetChat(c *gin.Context) {
	if s.opts.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal is disabled"})
		return
	}

	lines, err := s.opts.Journal.RecentChat(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chat":  lines,
		"count": len(lines),
	})
}

// handleGetCPUUsage returns current system CPU usage.
func (s *Server) handleGetCPUUsage(c *gin.Context) {
	usage, err := util.GetCPUUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cpu_percent": usage})
}

// handleGetMemoryUsage returns current system memory usage.
func (s *Server) handleGetMemoryUsage(c *gin.Context) {
	mem, err := util.GetMemoryUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, mem)
}

// handleGetLogEntries returns the tail of the newest log file.
func (s *Server) handleGetLogEntries(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count < 1 {
		count = 100
	}
	if count > 1000 {
		count = 1000
	}

	if s.opts.LogDir == "" {
		c.JSON(http.StatusOK, gin.H{"entries": []logEntry{}, "count": 0})
		return
	}

	entries, err := readRecentLogEntries(s.opts.LogDir, count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit < 1 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// logEntry is one zerolog JSON line.
type logEntry struct {
	Time      string                 `json:"time,omitempty"`
	Level     string                 `json:"level,omitempty"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// readRecentLogEntries parses the last count lines of the newest
// hearthlink_*.log file in logDir.
func readRecentLogEntries(logDir string, count int) ([]logEntry, error) {
	files, err := filepath.Glob(filepath.Join(logDir, "hearthlink_*.log"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []logEntry{}, nil
	}
	// Daily names sort by date.
	sort.Strings(files)

	f, err := os.Open(files[len(files)-1])
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := make([]string, 0, count)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(lines) == count {
			lines = lines[1:]
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	result := make([]logEntry, 0, len(lines))
	for _, line := range lines {
		result = append(result, parseLogLine(line))
	}
	return result, nil
}

func parseLogLine(line string) logEntry {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return logEntry{Message: line}
	}

	entry := logEntry{
		Time:      field(raw, "time"),
		Level:     field(raw, "level"),
		Component: field(raw, "component"),
		Message:   field(raw, "message"),
	}
	for _, k := range []string{"time", "level", "component", "message", "app", "caller"} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry
}

func field(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
