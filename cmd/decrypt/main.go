// Command decrypt reads encrypted orders from the report queue, or from the
// Kafka audit topic, and prints them with credentials masked.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/erain9/arbsignal/config"
	"github.com/erain9/arbsignal/pkg/codec"
	"github.com/erain9/arbsignal/pkg/core"
	"github.com/erain9/arbsignal/pkg/logging"
	"github.com/erain9/arbsignal/pkg/messaging/kafka"
	"github.com/fatih/color"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var (
	source     = flag.String("source", "amqp", "Where to read envelopes from: amqp, kafka")
	showSecret = flag.Bool("show_secrets", false, "Print credentials in clear")
	consumerID = flag.String("consumer", "arb-decrypt", "AMQP consumer tag / Kafka group id")
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Logging())
	if err := cfg.ValidateConsumer(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	c, err := codec.New(cfg.AESKey())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create codec")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &printer{out: os.Stdout, codec: c, showSecrets: *showSecret}

	switch *source {
	case "amqp":
		err = consumeQueue(ctx, cfg, p, logger)
	case "kafka":
		reader := kafka.NewAuditReader(cfg.Kafka.BrokerAddr, cfg.Kafka.Topic, *consumerID, logger)
		defer reader.Close()
		err = reader.Consume(ctx, p.print)
	default:
		err = fmt.Errorf("unknown source %q", *source)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Consumer stopped")
	}
}

func consumeQueue(ctx context.Context, cfg *config.Config, p *printer, logger zerolog.Logger) error {
	conn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	deliveries, err := ch.Consume(cfg.AMQP.Queue, *consumerID, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", cfg.AMQP.Queue, err)
	}
	logger.Info().Str("queue", cfg.AMQP.Queue).Msg("Waiting for orders")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			env, err := codec.ParseEnvelope(d.Body)
			if err == nil {
				err = p.print(d.MessageId, env)
			}
			if err != nil {
				logger.Warn().Err(err).Str("message_id", d.MessageId).Msg("Failed to decrypt delivery")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// printer decrypts envelopes and writes them as a table.
type printer struct {
	out         io.Writer
	codec       *codec.Codec
	showSecrets bool
}

func (p *printer) print(messageID string, env codec.Envelope) error {
	var msg core.OrderMessage
	if err := p.codec.Decrypt(env, &msg); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	spec, user := msg.OrderSpecs, msg.UserSpecs
	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\n", cyan("Message"), messageID, time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "%s\t%d\tstrategy %d\n", cyan("User"), user.UserID, user.InvestmentStrategyID)
	fmt.Fprintf(w, "%s\t%g %s @ %g %s/%s\ton %s\n", green("BUY"),
		spec.BuyVolume, spec.BuyBaseCurrency, spec.BuyPrice, spec.BuyQuoteCurrency, spec.BuyBaseCurrency, spec.BuyExchange)
	fmt.Fprintf(w, "%s\t%g %s @ %g %s/%s\ton %s\n", red("SELL"),
		spec.SellVolume, spec.SellBaseCurrency, spec.SellPrice, spec.SellQuoteCurrency, spec.SellBaseCurrency, spec.SellExchange)
	fmt.Fprintf(w, "%s\tkey %s\tsecret %s\tpassphrase %s\n", cyan("Buy creds"),
		p.secret(user.BuyExchangeKey), p.secret(user.BuyExchangeSecret), p.secret(user.BuyExchangePassphrase))
	fmt.Fprintf(w, "%s\tkey %s\tsecret %s\tpassphrase %s\n", cyan("Sell creds"),
		p.secret(user.SellExchangeKey), p.secret(user.SellExchangeSecret), p.secret(user.SellExchangePassphrase))
	fmt.Fprintln(w)
	return w.Flush()
}

func (p *printer) secret(s string) string {
	if p.showSecrets {
		return s
	}
	return mask(s)
}

// mask keeps the last four characters of secrets long enough to stay
// unguessable, and hides shorter ones completely.
func mask(s string) string {
	const visible = 4
	if s == "" {
		return "-"
	}
	if len(s) <= 2*visible {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-visible) + s[len(s)-visible:]
}
