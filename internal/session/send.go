package session

import (
	"context"

	"github.com/tapehouse/controltape/internal/ctlerr"
	"github.com/tapehouse/controltape/internal/events"
	"github.com/tapehouse/controltape/internal/replay"
	"github.com/tapehouse/controltape/internal/tape"
)

// Send writes text to the session verbatim.
func (s *Session) Send(text string) error {
	return s.sendWithKind([]byte(text), tape.InputRaw)
}

// SendLine appends a trailing newline and sends it, recorded as a
// line-kind input.
func (s *Session) SendLine(line string) error {
	return s.sendWithKind([]byte(line+"\n"), tape.InputLine)
}

func (s *Session) sendWithKind(data []byte, kind string) error {
	if !s.IsAlive() {
		return ctlerr.NewSessionError("send on a closed session")
	}

	ctx := s.ctxFunc()
	if s.recorder != nil && s.recorder.Active() {
		s.recorder.OnSend(data, kind, ctx)
	}

	if s.usingReplay() {
		err := s.replayT.Send(context.Background(), data)
		if err != nil {
			if _, ok := err.(*replay.Miss); ok {
				s.publishEvent(events.EventTapeMiss, "")
				s.auditExchange(kind, len(data), 0, "", true)
				if s.cfg.fallback == Proxy {
					return s.fallbackToLive(data, kind)
				}
			}
			return err
		}
		tapePath := s.replayT.LastTapePath()
		s.publishEvent(events.EventTapeMatched, tapePath)
		s.auditExchange(kind, len(data), len(s.replayT.Buffered()), tapePath, false)
		s.checkReplayExit()
		return nil
	}

	_, err := s.child.Write(data)
	if err != nil {
		return &ctlerr.ProcessError{Command: s.command, Err: err}
	}
	s.auditExchange(kind, len(data), 0, "", false)
	return nil
}

// checkReplayExit notices when the most recent replay exchange carried
// exit info and finalizes the session, mirroring the live pump's
// finalizeLive path.
func (s *Session) checkReplayExit() {
	if s.replayT.IsAlive() {
		return
	}
	s.mu.Lock()
	alreadyClosed := s.closed
	if !alreadyClosed {
		s.closed = true
		s.closedAt = s.lastActivity
		s.exitCode = s.replayT.ExitStatus()
		s.signal = s.replayT.SignalStatus()
	}
	s.mu.Unlock()
	if !alreadyClosed {
		if s.recorder != nil && s.recorder.Active() {
			s.recorder.Finalize()
		}
		s.closeInternal()
	}
}

// fallbackToLive tears down the replay transport and spawns a live
// child with the session's original command/env/cwd, then re-executes
// the current send against it.
func (s *Session) fallbackToLive(data []byte, kind string) error {
	child, err := spawnChild(s.program, s.args, s.cfg.cwd, envSlice(s.cfg.env), s.cfg.rows, s.cfg.cols, s.cfg.backend)
	if err != nil {
		return &ctlerr.ProcessError{Command: s.command, Err: err}
	}

	s.mu.Lock()
	s.replayT = nil
	s.child = child
	s.mu.Unlock()

	s.startPump()
	return s.sendWithKind(data, kind)
}
