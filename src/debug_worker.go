package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/a529987659852/openwbmqtt/src/openwb"
)

// ANSI color codes for highlighting changes
const (
	ansiReset  = "\033[0m"
	ansiYellow = "\033[33m" // Yellow for changed values
)

// readlineWriter wraps log output to work with readline
type readlineWriter struct {
	rl *readline.Instance
}

func (w *readlineWriter) Write(p []byte) (n int, err error) {
	if w.rl != nil {
		w.rl.Clean()
	}
	n, err = os.Stderr.Write(p)
	if w.rl != nil {
		w.rl.Refresh()
	}
	return n, err
}

// Sync satisfies zapcore.WriteSyncer
func (w *readlineWriter) Sync() error {
	return nil
}

// Global readline writer for log output
var rlWriter = &readlineWriter{}

// DebugState manages the list of watched entities
type DebugState struct {
	logger        *zap.Logger
	watches       []string
	headerPrinted bool
	columnWidths  []int
	latest        *openwb.Snapshot
	rl            *readline.Instance
	prevValues    map[string]string // Track previous value per watch for change highlighting
	out           func(line string)
}

// NewDebugState creates a new debug state
func NewDebugState(logger *zap.Logger) *DebugState {
	return &DebugState{
		logger:     logger,
		watches:    make([]string, 0),
		prevValues: make(map[string]string),
	}
}

// shortName strips the component and the common prefix from an entity id,
// e.g. "sensor.openwb_chargepoint_3_ladeleistung" -> "chargepoint_3_ladeleistung"
func shortName(id string) string {
	_, name, ok := strings.Cut(id, ".")
	if !ok {
		return id
	}
	return strings.TrimPrefix(name, "openwb_")
}

// displayValue renders an entity state for the table
func displayValue(es openwb.EntityState) string {
	if !es.Known {
		return "-"
	}
	return es.Value
}

// AddWatch adds a watch and re-sorts the list
func (s *DebugState) AddWatch(id string) {
	if s.latest != nil {
		if _, ok := s.latest.Lookup(id); !ok {
			s.logger.Warn("Unknown entity", zap.String("entity", id))
			return
		}
	}
	if slices.Contains(s.watches, id) {
		s.logger.Info("Already watching", zap.String("entity", id))
		return
	}

	s.watches = append(s.watches, id)
	sort.Slice(s.watches, func(i, j int) bool {
		return shortName(s.watches[i]) < shortName(s.watches[j])
	})
	s.headerPrinted = false
	s.logger.Info("Watching", zap.String("entity", id))
}

// RemoveWatch removes a watch by exact id or unique substring
func (s *DebugState) RemoveWatch(id string) bool {
	if i := slices.Index(s.watches, id); i >= 0 {
		s.watches = slices.Delete(s.watches, i, i+1)
		s.headerPrinted = false
		s.logger.Info("Unwatched", zap.String("entity", id))
		return true
	}

	var matches []int
	for i, w := range s.watches {
		if strings.Contains(w, id) {
			matches = append(matches, i)
		}
	}

	if len(matches) == 1 {
		removed := s.watches[matches[0]]
		s.watches = slices.Delete(s.watches, matches[0], matches[0]+1)
		s.headerPrinted = false
		s.logger.Info("Unwatched", zap.String("entity", removed))
		return true
	}

	if len(matches) > 1 {
		s.logger.Info("Multiple watches match, use the full entity id", zap.String("match", id))
		return false
	}

	s.logger.Info("No watch found", zap.String("entity", id))
	return false
}

// RemoveAll removes all watches
func (s *DebugState) RemoveAll() {
	s.watches = s.watches[:0]
	s.headerPrinted = false
	s.logger.Info("All watches removed")
}

// UpdateData stores the latest snapshot for use by list command
func (s *DebugState) UpdateData(snap openwb.Snapshot) {
	s.latest = &snap
}

// SetReadline sets the readline instance for proper output handling
func (s *DebugState) SetReadline(rl *readline.Instance) {
	s.rl = rl
}

// print outputs a line, handling readline prompt properly
func (s *DebugState) print(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	switch {
	case s.out != nil:
		s.out(line)
	case s.rl != nil:
		// Clean prompt, print, refresh prompt
		s.rl.Clean()
		fmt.Println(line)
		s.rl.Refresh()
	default:
		fmt.Println(line)
	}
}

// ListEntities prints the entities whose id contains filter
func (s *DebugState) ListEntities(filter string) {
	if s.latest == nil {
		s.logger.Info("No data received yet")
		return
	}

	var rows []openwb.EntityState
	for _, es := range s.latest.Entities {
		if filter == "" || strings.Contains(es.ID, filter) {
			rows = append(rows, es)
		}
	}

	s.print("Entities (%d):", len(rows))
	for _, es := range rows {
		s.print("  %-60s %s", es.ID, displayValue(es))
	}
}

// PrintHeader prints the column headers
func (s *DebugState) PrintHeader() {
	if len(s.watches) == 0 {
		return
	}

	s.columnWidths = make([]int, len(s.watches))
	parts := make([]string, 0, len(s.watches))
	for i, w := range s.watches {
		s.columnWidths[i] = len(shortName(w))
		parts = append(parts, fmt.Sprintf("%*s", s.columnWidths[i], shortName(w)))
	}
	s.print("%s", strings.Join(parts, " | "))
	s.headerPrinted = true
	s.prevValues = make(map[string]string) // Reset previous values when header changes
}

// PrintRow prints the current values for all watches (only if changed)
func (s *DebugState) PrintRow(snap openwb.Snapshot) {
	if len(s.watches) == 0 {
		return
	}

	if !s.headerPrinted {
		s.PrintHeader()
	}

	parts := make([]string, 0, len(s.watches))
	anyChanged := false
	newValues := make(map[string]string, len(s.watches))

	for i, w := range s.watches {
		value := "?"
		if es, ok := snap.Lookup(w); ok {
			value = displayValue(es)
		}
		newValues[w] = value

		width := s.columnWidths[i]
		if len(value) > width {
			width = len(value)
			s.columnWidths[i] = width
		}

		prevValue, hasPrev := s.prevValues[w]
		if !hasPrev || prevValue != value {
			anyChanged = true
			parts = append(parts, fmt.Sprintf("%s%*s%s", ansiYellow, width, value, ansiReset))
		} else {
			parts = append(parts, fmt.Sprintf("%*s", width, value))
		}
	}

	if anyChanged {
		s.print("%s", strings.Join(parts, " | "))
		s.prevValues = newValues
	}
}

// debugAction is the side effect of a command line that needs another worker
type debugAction struct {
	Request  *bridgeRequest
	ReadOnly *bool
}

// parseDebugAction parses the commands that leave the debug worker. The
// request carries no result channel yet.
func parseDebugAction(parts []string) (debugAction, error) {
	switch parts[0] {
	case "set":
		if len(parts) < 3 {
			return debugAction{}, errors.New("usage: set <entity> <value>")
		}
		cmd := openwb.Command{EntityID: parts[1], Payload: strings.Join(parts[2:], " ")}
		return debugAction{Request: &bridgeRequest{Command: &cmd}}, nil

	case "service":
		if len(parts) < 2 {
			return debugAction{}, errors.New("usage: service <name> [json arguments]")
		}
		call, err := decodeServiceCall(parts[1], strings.Join(parts[2:], " "))
		if err != nil {
			return debugAction{}, err
		}
		return debugAction{Request: &bridgeRequest{Service: &call}}, nil

	case "readonly":
		if len(parts) != 2 || (parts[1] != "on" && parts[1] != "off") {
			return debugAction{}, errors.New("usage: readonly <on|off>")
		}
		ro := parts[1] == "on"
		return debugAction{ReadOnly: &ro}, nil
	}
	return debugAction{}, fmt.Errorf("unknown command: %s (try 'help')", parts[0])
}

// debugChannels connects the debug worker to the rest of the pipeline
type debugChannels struct {
	Requests chan<- bridgeRequest
	ReadOnly chan<- bool
}

// handleDebugCommand processes a debug command
func handleDebugCommand(ctx context.Context, cmd string, state *DebugState, chans debugChannels) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return
	}

	switch parts[0] {
	case "watch":
		if len(parts) != 2 {
			state.logger.Info("Usage: watch <entity>")
			return
		}
		state.AddWatch(parts[1])

	case "unwatch":
		if len(parts) != 2 {
			state.logger.Info("Usage: unwatch <entity> | unwatch --all")
			return
		}
		if parts[1] == "--all" {
			state.RemoveAll()
			return
		}
		state.RemoveWatch(parts[1])

	case "list":
		state.ListEntities(strings.Join(parts[1:], " "))

	case "services":
		state.print("Services: %s", strings.Join(openwb.Services, ", "))

	case "help":
		state.print("Commands:")
		state.print("  list [filter]                    - List entities and their values")
		state.print("  watch <entity>                   - Watch an entity")
		state.print("  unwatch <entity>                 - Remove watch (exact or unique match)")
		state.print("  unwatch --all                    - Remove all watches")
		state.print("  set <entity> <value>             - Command a select, number or switch")
		state.print("  services                         - List legacy services")
		state.print("  service <name> {json}            - Call a legacy service")
		state.print("  readonly <on|off>                - Drop or allow wallbox commands")
		state.print("  help                             - Show this help")

	default:
		action, err := parseDebugAction(parts)
		if err != nil {
			state.logger.Info(err.Error())
			return
		}
		runDebugAction(ctx, state, chans, action)
	}
}

func runDebugAction(ctx context.Context, state *DebugState, chans debugChannels, action debugAction) {
	if action.ReadOnly != nil {
		select {
		case chans.ReadOnly <- *action.ReadOnly:
		case <-ctx.Done():
		}
		return
	}

	result := make(chan error, 1)
	req := *action.Request
	req.Result = result
	select {
	case chans.Requests <- req:
	case <-ctx.Done():
		return
	}

	select {
	case err := <-result:
		if err != nil {
			state.logger.Warn("Request failed", zap.Error(err))
			return
		}
		state.logger.Info("Request sent")
	case <-time.After(5 * time.Second):
		state.logger.Warn("Request timed out")
	case <-ctx.Done():
	}
}

// readlineLoop runs the readline loop, sending commands to the channel
func readlineLoop(
	ctx context.Context,
	cancel context.CancelFunc,
	rl *readline.Instance,
	commandChan chan<- string,
) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			cancel() // Ctrl+C pressed, shutdown the app
			return
		}
		if err != nil {
			return // EOF or other error
		}
		line = strings.TrimSpace(line)
		if line != "" {
			commandChan <- line
		}
	}
}

// getHistoryFilePath returns the path for debug history file
func getHistoryFilePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // No history if we can't find home
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	appCache := filepath.Join(cacheDir, "openwbmqtt")
	_ = os.MkdirAll(appCache, 0750)
	return filepath.Join(appCache, "debug_history")
}

// debugWorker provides interactive introspection of entity states
func debugWorker(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *zap.Logger,
	dataChan <-chan openwb.Snapshot,
	chans debugChannels,
) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: getHistoryFilePath(),
	})
	if err != nil {
		logger.Warn("Debug worker: readline init failed", zap.Error(err))
		return
	}
	defer func() {
		_ = rl.Close()
		rlWriter.rl = nil // Clear readline reference on exit
	}()

	// Log output already goes through rlWriter in debug mode
	rlWriter.rl = rl

	logger.Info("Debug worker started (type 'help' for commands)")

	commandChan := make(chan string, 10)
	state := NewDebugState(logger)
	state.SetReadline(rl)

	go readlineLoop(ctx, cancel, rl, commandChan)

	for {
		select {
		case cmd := <-commandChan:
			handleDebugCommand(ctx, cmd, state, chans)
		case snap := <-dataChan:
			state.UpdateData(snap)
			if len(state.watches) > 0 {
				state.PrintRow(snap)
			}
		case <-ctx.Done():
			logger.Info("Debug worker stopped")
			return
		}
	}
}
