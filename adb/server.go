package adb

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultCandidates are tried in order when the adb server is not running
var DefaultCandidates = []string{"adb", "/usr/bin/adb", "/usr/local/bin/adb"}

// EnsureServerRunning makes sure an adb server answers on Addr. If it does
// not, each eligible candidate executable is asked to start one until the
// first succeeds.
func (c *Client) EnsureServerRunning(ctx context.Context) error {
	if v, err := c.Version(ctx); err == nil {
		log.Debug().Int("version", v).Str("addr", c.Addr).Msg("adb server already running")
		return nil
	}

	eligible := lo.Filter(c.Candidates, func(candidate string, _ int) bool {
		return isExecutable(candidate)
	})
	if len(eligible) == 0 {
		log.Warn().Strs("candidates", c.Candidates).Msg("⚠️ No adb executable found")
		return ErrDegradedStartup
	}

	_, port, err := net.SplitHostPort(c.Addr)
	if err != nil {
		port = "5037"
	}

	for _, candidate := range eligible {
		cmd := exec.CommandContext(ctx, candidate, "-P", port, "start-server")
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		log.Debug().Str("cmd", fmt.Sprintf("%s -P %s start-server", candidate, port)).Msg("starting adb server")
		if err := cmd.Run(); err != nil {
			log.Warn().Err(err).Str("candidate", candidate).Str("stderr", strings.TrimSpace(stderr.String())).Msg("adb start-server failed")
			continue
		}

		log.Info().Str("candidate", candidate).Msg("✅ adb server started")
		return nil
	}

	return ErrDegradedStartup
}

// isExecutable reports whether a candidate can be run: a bare name must be
// on PATH, anything with a separator must exist on disk.
func isExecutable(candidate string) bool {
	if !strings.ContainsRune(candidate, os.PathSeparator) {
		_, err := exec.LookPath(candidate)
		return err == nil
	}
	info, err := os.Stat(candidate)
	return err == nil && !info.IsDir()
}
