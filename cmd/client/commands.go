package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/rs/zerolog/log"
)

const usage = `commands:
  call <user> [audio|video]   place a call
  accept | decline | hangup   act on the current call
  mute | camera               toggle the microphone or camera
  say <room-id> <text>        send a chat message to a room
  tell <user> <text>          send a chat message to one user
  room                        print a fresh room id`

// commands reads one command per line and drives the call service.
type commands struct {
	self   domain.UserID
	calls  *service.CallService
	events port.EventChannel
	media  domain.MediaKind
}

func (c *commands) run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.exec(ctx, line); err != nil {
			log.Error().Err(err).Str("command", line).Msg("Command failed")
		}
	}
}

func (c *commands) exec(ctx context.Context, line string) error {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "call":
		user, kind, _ := strings.Cut(rest, " ")
		media := c.media
		switch strings.TrimSpace(kind) {
		case "audio":
			media = domain.MediaAudio
		case "video":
			media = domain.MediaAudioVideo
		}
		_, err := c.calls.StartCall(ctx, domain.UserID(user), media)
		return err

	case "accept":
		id, err := c.current()
		if err != nil {
			return err
		}
		return c.calls.AcceptCall(ctx, id)

	case "decline":
		id, err := c.current()
		if err != nil {
			return err
		}
		return c.calls.DeclineCall(ctx, id)

	case "hangup":
		id, err := c.current()
		if err != nil {
			return err
		}
		return c.calls.Hangup(ctx, id)

	case "mute":
		id, err := c.current()
		if err != nil {
			return err
		}
		muted, err := c.calls.ToggleMute(id)
		if err != nil {
			return err
		}
		log.Info().Bool("muted", muted).Msg("Microphone")
		return nil

	case "camera":
		id, err := c.current()
		if err != nil {
			return err
		}
		off, err := c.calls.ToggleCamera(id)
		if err != nil {
			return err
		}
		log.Info().Bool("off", off).Msg("Camera")
		return nil

	case "say":
		room, text, _ := strings.Cut(rest, " ")
		roomID, err := domain.ParseRoomID(room)
		if err != nil {
			return fmt.Errorf("room id: %w", err)
		}
		return c.send(ctx, roomID, "", text)

	case "tell":
		user, text, _ := strings.Cut(rest, " ")
		return c.send(ctx, domain.RoomID{}, domain.UserID(user), text)

	case "room":
		fmt.Println(domain.NewRoomID())
		return nil

	case "help":
		fmt.Println(usage)
		return nil
	}
	return fmt.Errorf("unknown command %q, try help", name)
}

func (c *commands) current() (domain.CallID, error) {
	s, ok := c.calls.Current()
	if !ok || !s.Live() {
		return domain.CallID{}, domain.ErrCallNotFound
	}
	return s.ID, nil
}

func (c *commands) send(ctx context.Context, room domain.RoomID, to domain.UserID, text string) error {
	ev, err := domain.NewEvent(domain.EventChat, c.self, room, to, strings.TrimSpace(text), time.Now().UTC())
	if err != nil {
		return err
	}
	return c.events.SendEvent(ctx, *ev)
}
