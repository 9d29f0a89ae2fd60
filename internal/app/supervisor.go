package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

// Supervisor sequences startup (acquire media, connect transport, join room)
// and teardown in exact reverse. Teardown is best-effort and always runs to
// completion: a failed join still releases already-acquired media. Failed
// joins are not retried here; retry is the caller's decision.
type Supervisor struct {
	media       *MediaSource
	coordinator *RoomCoordinator
	signals     core.SignalChannel

	mu      sync.Mutex
	started bool
}

func NewSupervisor(media *MediaSource, coordinator *RoomCoordinator, signals core.SignalChannel) *Supervisor {
	return &Supervisor{media: media, coordinator: coordinator, signals: signals}
}

func (s *Supervisor) Start(ctx context.Context, room domain.RoomID, local domain.Participant) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return core.ErrAlreadyJoined
	}
	s.started = true
	s.mu.Unlock()

	if _, err := s.media.Acquire(ctx); err != nil {
		s.fail()
		return fmt.Errorf("startup: %w", err)
	}
	if err := s.coordinator.Join(ctx, room, local); err != nil {
		s.fail()
		return fmt.Errorf("startup: %w", err)
	}
	return nil
}

// fail rolls a partial startup back so the caller may re-invoke Start.
func (s *Supervisor) fail() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.teardown()
}

// Stop tears the session down. Safe to call after a failed Start or twice.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()
	s.teardown()
}

func (s *Supervisor) teardown() {
	// Leave already releases media and closes the channel when a join went
	// through; the explicit calls below cover partial startups and are
	// no-ops otherwise.
	s.coordinator.Leave()
	s.media.Release()
	s.signals.Close()
	log.Info().Str("module", "app.supervisor").Msg("teardown complete")
}
