// Wstest exercises wsengine's WebSocket client against the fuzzing
// server of the [Autobahn Testsuite].
//
// [Autobahn Testsuite]: https://github.com/crossbario/autobahn-testsuite
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/tzrikka/wsengine/internal/logger"
	"github.com/tzrikka/wsengine/pkg/websocket"
)

const agent = "wsengine"

func main() {
	cmd := &cli.Command{
		Name:  "wstest",
		Usage: "run wsengine's WebSocket client against the Autobahn fuzzing server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "base-url",
				Value: "ws://127.0.0.1:9001",
				Usage: "base URL of the Autobahn fuzzing server",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug-level logging",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("wstest failed")
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	level := zerolog.InfoLevel
	if cmd.Bool("debug") {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(zerolog.NewConsoleWriter()).Level(level).With().Timestamp().Logger()
	ctx = logger.InContext(ctx, l)

	baseURL := cmd.String("base-url")
	cfg := websocket.DefaultConfig()
	cfg.Logger = l

	n, err := getCaseCount(ctx, baseURL, cfg)
	if err != nil {
		return fmt.Errorf("case count: %w", err)
	}
	l.Info().Int("n", n).Msg("case count")

	pool := websocket.NewPool(cfg)
	defer pool.CloseAll()

	// Case groups 12.* and 13.* (WebSocket compression) are expected to be
	// skipped upstream: this client doesn't negotiate any extension.
	targets := make(map[string]string, n)
	for i := 1; i <= n; i++ {
		targets[strconv.Itoa(i)] = fmt.Sprintf("%s/runCase?case=%d&agent=%s", baseURL, i, agent)
	}

	results := pool.RunAll(ctx, targets, runCase)
	for i := 1; i <= n; i++ {
		key := strconv.Itoa(i)
		if err := results[key]; err != nil {
			l.Error().Int("case", i).Err(err).Msg("test case failed")
		}
	}

	return updateReports(ctx, baseURL, cfg)
}

// getCaseCount retrieves the number of enabled test cases from the
// Autobahn fuzzing server, using a WebSocket request.
func getCaseCount(ctx context.Context, baseURL string, cfg websocket.Config) (int, error) {
	conn, err := websocket.ConnectPlain(ctx, baseURL+"/getCaseCount", cfg, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = conn.Close(websocket.CloseNormalClosure, "") }()

	data, _, err := conn.NextMsg(nil)
	if err != nil {
		return 0, fmt.Errorf("read case count: %w", err)
	}

	return strconv.Atoi(string(data))
}

// updateReports instructs the Autobahn fuzzing server to generate/update
// all the HTML and JSON files for all the test-case results.
func updateReports(ctx context.Context, baseURL string, cfg websocket.Config) error {
	l := logger.FromContext(ctx)
	l.Info().Msg("updating reports")

	url := fmt.Sprintf("%s/updateReports?agent=%s", baseURL, agent)
	conn, err := websocket.ConnectPlain(ctx, url, cfg, nil)
	if err != nil {
		return err
	}
	return conn.Close(websocket.CloseNormalClosure, "")
}

// runCase drives a single Autobahn test case to completion: it echoes
// back every Text or Binary message it receives until the server ends
// the test with a Close frame.
func runCase(ctx context.Context, key string, conn *websocket.Conn) error {
	l := logger.FromContext(ctx).With().Str("case", key).Str("conn", conn.ID).Logger()
	l.Info().Msg("starting test")

	var buf []byte
	for {
		data, op, err := conn.NextMsg(buf)
		if err != nil {
			var closedErr *websocket.ClosedError
			if errors.As(err, &closedErr) {
				l.Debug().Msg("connection closed")
				return nil
			}
			return err
		}

		l.Info().Str("opcode", op.String()).Int("length", len(data)).Msg("received message")

		switch op {
		case websocket.OpcodeText:
			err = conn.SendText(data)
		case websocket.OpcodeBinary:
			err = conn.SendBinary(data)
		default:
			return fmt.Errorf("unexpected opcode %v in data message", op)
		}
		if err != nil {
			l.Error().Err(err).Msg("echo error")
			return conn.Close(websocket.CloseProtocolError, "")
		}

		buf = data
	}
}
