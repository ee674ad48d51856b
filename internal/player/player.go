// Package player hands a stream URL to an external media player.
package player

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// ErrPlayerNotFound is returned when the player binary is not on PATH.
var ErrPlayerNotFound = errors.New("player not found")

// Launcher starts playback of a stream URL. Launch returns once the player
// has started; playback itself is not tracked.
type Launcher interface {
	Launch(ctx context.Context, url string) error
}

// Exec launches an external command, passing Args followed by the URL.
type Exec struct {
	log     logrus.FieldLogger
	Command string
	Args    []string
}

// NewExec creates a launcher for command.
func NewExec(log logrus.FieldLogger, command string, args ...string) *Exec {
	return &Exec{
		log:     log.WithField("component", "player"),
		Command: command,
		Args:    args,
	}
}

// Launch starts the player and reaps it in the background.
func (e *Exec) Launch(ctx context.Context, url string) error {
	path, err := exec.LookPath(e.Command)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrPlayerNotFound, e.Command)
		}

		return fmt.Errorf("failed to resolve player %s: %w", e.Command, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	args := make([]string, 0, len(e.Args)+1)
	args = append(args, e.Args...)
	args = append(args, url)

	// Not tied to ctx: the player outlives the menu interaction that chose it.
	cmd := exec.Command(path, args...) //nolint:gosec // the player and its arguments come from the user's own config

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start player: %w", err)
	}

	log := e.log.WithFields(logrus.Fields{
		"player": e.Command,
		"pid":    cmd.Process.Pid,
		"url":    url,
	})

	log.Info("Player started")

	go func() {
		if err := cmd.Wait(); err != nil {
			log.WithError(err).Debug("Player exited")

			return
		}

		log.Debug("Player exited")
	}()

	return nil
}
