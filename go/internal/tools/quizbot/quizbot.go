// Command quizbot plays a whole session against a running server with two
// scripted participants.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/controller"
	"github.com/mcdev12/quizduel/go/internal/gateway"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/sessions"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "quizduel server")
	timeout := flag.Duration("timeout", 15*time.Minute, "give up after")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := sessions.NewClient(http.DefaultClient, *server)
	created, err := client.CreateSession(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("create session")
	}
	code := created.Code
	log.Info().Str("code", code).Msg("session created")

	bots := make([]*bot, 0, 2)
	for _, role := range []models.Role{models.RoleHost, models.RoleGuest} {
		claim, err := client.ClaimRole(ctx, code, "", role)
		if err != nil {
			log.Fatal().Err(err).Str("role", string(role)).Msg("claim role")
		}
		b, err := dial(ctx, *server, code, claim.ParticipantID, role)
		if err != nil {
			log.Fatal().Err(err).Str("role", string(role)).Msg("connect")
		}
		defer b.conn.Close()
		bots = append(bots, b)
	}

	done := make(chan *controller.Frame, len(bots))
	for _, b := range bots {
		go func() {
			f, err := b.play(ctx)
			if err != nil {
				log.Error().Err(err).Str("role", string(b.role)).Msg("bot stopped")
			}
			done <- f
		}()
	}

	var final *controller.Frame
	for range bots {
		if f := <-done; f != nil {
			final = f
		}
	}
	if final == nil {
		os.Exit(1)
	}
	fmt.Printf("Session %s finished: host %d, guest %d\n", code, final.Scores.Host, final.Scores.Guest)
}

type bot struct {
	role models.Role
	conn *websocket.Conn
	rng  *rand.Rand
	ref  int

	// Stages already acted on.
	done map[models.Stage]bool
}

func dial(ctx context.Context, server, code, participantID string, role models.Role) (*bot, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws/session"
	u.RawQuery = url.Values{"code": {code}, "participant": {participantID}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return &bot{
		role: role,
		conn: conn,
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		done: make(map[models.Stage]bool),
	}, nil
}

// play reacts to frames until the session reaches its final phase.
func (b *bot) play(ctx context.Context) (*controller.Frame, error) {
	go func() {
		<-ctx.Done()
		b.conn.Close()
	}()
	for {
		var msg gateway.ServerMessage
		if err := b.conn.ReadJSON(&msg); err != nil {
			return nil, err
		}
		switch msg.Type {
		case gateway.MessageError:
			log.Warn().Str("role", string(b.role)).Str("ref", msg.Ref).Str("error", msg.Error).Msg("action rejected")
		case gateway.MessageView:
			log.Info().Str("role", string(b.role)).Str("path", msg.Path).Msg("view")
		case gateway.MessageFrame:
			if msg.Frame.Session.Phase == models.PhaseFinal {
				return msg.Frame, nil
			}
			if err := b.react(msg.Frame); err != nil {
				return nil, err
			}
		}
	}
}

func (b *bot) react(f *controller.Frame) error {
	s := f.Session
	stage := s.Stage()
	if b.done[stage] {
		return nil
	}

	switch s.Phase {
	case models.PhaseLobby:
		if b.role != models.RoleHost || s.Identities.Guest == "" {
			return nil
		}
		b.done[stage] = true
		return b.send(controller.Start())

	case models.PhaseQuestions:
		if len(f.Choices) == 0 || f.Local.AnswersSubmitted {
			return nil
		}
		b.done[stage] = true
		for i, choices := range f.Choices {
			if len(choices) == 0 {
				continue
			}
			if err := b.send(controller.ChooseAnswer(i, choices[b.rng.IntN(len(choices))])); err != nil {
				return err
			}
		}

	case models.PhaseMarking:
		if f.Local.VerdictsSubmitted {
			return nil
		}
		b.done[stage] = true
		verdicts := []models.Verdict{models.VerdictRight, models.VerdictWrong, models.VerdictUnknown}
		for i := 0; i < models.ItemsPerRound; i++ {
			if err := b.send(controller.SetVerdict(i, verdicts[b.rng.IntN(len(verdicts))])); err != nil {
				return err
			}
		}
		return b.send(controller.SubmitVerdicts())

	case models.PhaseMaths:
		if s.HasMathsAnswers(b.role) {
			return nil
		}
		b.done[stage] = true
		numbers := make([]int, models.MathsQuestions)
		for i := range numbers {
			numbers[i] = b.rng.IntN(100)
		}
		return b.send(controller.SubmitMaths(numbers...))
	}
	return nil
}

func (b *bot) send(a controller.Action) error {
	b.ref++
	data, err := json.Marshal(gateway.ClientMessage{Action: a, Ref: fmt.Sprintf("%s-%d", b.role, b.ref)})
	if err != nil {
		return err
	}
	return b.conn.WriteMessage(websocket.TextMessage, data)
}
