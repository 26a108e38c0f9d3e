package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/soyeahso/maestro/internal/config"
)

const defaultShellTimeout = 10 * time.Second

// ShellHandler runs command through sh -c with the JSON payload on stdin
// and MAESTRO_EVENT set. timeout <= 0 uses ten seconds.
func ShellHandler(command string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	return func(ctx context.Context, p Payload) error {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(body)
		cmd.Env = append(cmd.Environ(), "MAESTRO_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
				return fmt.Errorf("hook %q: %w: %s", command, err, msg)
			}
			return fmt.Errorf("hook %q: %w", command, err)
		}
		return nil
	}
}

// RegisterConfig registers a shell handler for every configured hook entry
// and returns how many were added.
func (m *Manager) RegisterConfig(cfg config.HooksConfig) int {
	byEvent := map[string][]config.HookEntry{
		EventRequestReceived: cfg.RequestReceived,
		EventBeforeDispatch:  cfg.BeforeDispatch,
		EventAfterDispatch:   cfg.AfterDispatch,
		EventResponderFailed: cfg.ResponderFailed,
		EventQueryRejected:   cfg.QueryRejected,
		EventGatewayStart:    cfg.GatewayStart,
		EventGatewayStop:     cfg.GatewayStop,
	}
	n := 0
	for _, event := range AllEvents {
		for i, e := range byEvent[event] {
			if e.Command == "" {
				continue
			}
			timeout := time.Duration(e.Timeout) * time.Millisecond
			m.On(event, fmt.Sprintf("config:%s:%d", event, i), ShellHandler(e.Command, timeout))
			n++
		}
	}
	return n
}
