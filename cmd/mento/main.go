package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/mento/pkg/controller"
	"github.com/go-go-golems/mento/pkg/events"
	"github.com/go-go-golems/mento/pkg/helpers"
	"github.com/go-go-golems/mento/pkg/modality"
	"github.com/go-go-golems/mento/pkg/primitives"
	"github.com/go-go-golems/mento/pkg/recovery"
	"github.com/go-go-golems/mento/pkg/session"
	"github.com/go-go-golems/mento/pkg/transport"
	"github.com/go-go-golems/mento/pkg/uitree"
)

var rootCmd = &cobra.Command{
	Use:   "mento",
	Short: "Conversational learning-assistant client",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger(viper.GetString("log-level"))
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive chat session",
	RunE:  runChat,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.String("stream-addr", "localhost:9000", "address of the backend stream")
	pf.String("backend-url", "http://localhost:9001", "base URL of the backend request endpoints")
	pf.String("session-id", "", "session id (generated when empty)")
	pf.Duration("base-delay", 500*time.Millisecond, "reconnect backoff base delay")
	pf.Duration("max-delay", 0, "reconnect backoff delay cap (0 = uncapped)")
	pf.Int("retry-budget", 5, "maximum automatic reconnect attempts")
	pf.String("recovery-db", "", "path of the local recovery database (in-memory when empty)")

	cobra.CheckErr(viper.BindPFlags(pf))
	viper.SetEnvPrefix("MENTO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(chatCmd)
}

func initLogger(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(parsed)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	sessionID := viper.GetString("session-id")
	if sessionID == "" {
		sessionID = fmt.Sprintf("mento-%d", time.Now().UnixNano())
	}

	var store recovery.Store
	if path := viper.GetString("recovery-db"); path != "" {
		boltStore, err := recovery.NewBoltStore(path)
		if err != nil {
			return err
		}
		defer func() {
			_ = boltStore.Close()
		}()
		store = boltStore
	} else {
		store = recovery.NewMemoryStore()
	}

	registry := uitree.NewRegistry()
	if err := primitives.RegisterBuiltins(registry); err != nil {
		return err
	}

	backend := modality.NewHTTPBackend(viper.GetString("backend-url"), http.DefaultClient)
	synchronizer := modality.NewSynchronizer(sessionID, backend, store)

	frameTopics := []string{
		transport.TopicChunk,
		transport.TopicComplete,
		transport.TopicError,
		transport.TopicStatus,
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, helpers.NewWatermill(log.Logger))
	defer func() {
		_ = pubSub.Close()
	}()
	pm := events.NewPublisherManager()
	for _, topic := range frameTopics {
		pm.SubscribePublisher(topic, pubSub)
	}
	tapFrames(cmd.Context(), pubSub, frameTopics...)

	client := transport.NewClient(
		sessionID,
		transport.NewTCPDialer(viper.GetString("stream-addr")),
		transport.WithBaseDelay(viper.GetDuration("base-delay")),
		transport.WithMaxDelay(viper.GetDuration("max-delay")),
		transport.WithRetryBudget(viper.GetInt("retry-budget")),
		transport.WithPublisherManager(pm),
	)

	sess := session.New(sessionID)
	ctrl := controller.New(client, sess, synchronizer,
		controller.WithRenderer(uitree.NewRenderer(registry)),
	)

	return runUI(cmd.Context(), client, ctrl)
}

// tapFrames logs every classified frame at debug level, with its sequence
// number, so a session can be traced without touching the UI.
func tapFrames(ctx context.Context, sub message.Subscriber, topics ...string) {
	for _, topic := range topics {
		msgs, err := sub.Subscribe(ctx, topic)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("could not subscribe frame tap")
			continue
		}
		go func(topic string, msgs <-chan *message.Message) {
			for m := range msgs {
				log.Debug().
					Str("topic", topic).
					Str("sequence_number", m.Metadata.Get("sequence_number")).
					RawJSON("frame", m.Payload).
					Msg("frame")
				m.Ack()
			}
		}(topic, msgs)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
