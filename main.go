package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/llm"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/retrieval"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
	configx "github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/config"
	hubspotx "github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/hubspot"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/leadlog"
	_ "github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/logger/autoload"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/metrics"
	openrouterx "github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/openrouter"
	qstashx "github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/qstash"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/server"
	twiliox "github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/twilio"
)

type AppConfig struct {
	FillerPhrases []string `envconfig:"FILLER_PHRASES"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")
	httpCfg := configx.MustNew[server.Config]("HTTP")

	llmCfg := configx.MustNew[llm.Config]("OPENROUTER")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid openrouter config")
	}

	orCfg := llmCfg.OpenRouter()
	chatModel, err := orCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize conversation model")
	}

	openRouterClient, err := openrouterx.NewClient(llmCfg.OpenRouter())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize openrouter client")
	}
	answerer, err := retrieval.NewOpenAIAnswerer(openRouterClient, llmCfg.Retrieval())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize knowledge-base answerer")
	}

	m := metrics.New()

	var (
		crm     contractx.CRM
		hubspot *hubspotx.Client
	)
	if hubspotCfg := mustOptional[hubspotx.Config]("HUBSPOT"); hubspotCfg != nil {
		hubspot = hubspotx.MustNew(*hubspotCfg)
		crm = m.InstrumentCRM(hubspot)
	} else {
		log.Warn().Msg("hubspot not configured; call outcomes will only be logged")
	}

	var (
		audit   statex.MultiAudit
		srvOpts []server.Option
	)
	if upstashCfg := mustOptional[statex.UpstashRedisConfig]("UPSTASH_REDIS"); upstashCfg != nil {
		store, err := statex.NewUpstashRedisStore(*upstashCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize upstash snapshot store")
		}
		audit = append(audit, store)
		srvOpts = append(srvOpts, server.WithLeadStore(store))
	}
	if leadlogCfg := mustOptional[leadlog.Config]("LEADLOG"); leadlogCfg != nil && leadlogCfg.Enabled() {
		repo, err := leadlog.Open(*leadlogCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open lead log")
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare lead log schema")
		}
		audit = append(audit, repo)
		srvOpts = append(srvOpts, server.WithLeadHistory(repo))
	}

	if twilioCfg := mustOptional[twiliox.Config]("TWILIO"); twilioCfg != nil {
		if hubspot == nil {
			log.Fatal().Msg("outbound campaigns need hubspot to find contacts")
		}
		srvOpts = append(srvOpts, server.WithCampaign(hubspot, twiliox.MustNew(*twilioCfg)))
	} else {
		log.Info().Msg("twilio not configured; outbound campaigns disabled")
	}

	var followUp contractx.FollowUpPublisher
	if qstashCfg := mustOptional[qstashx.Config]("QSTASH"); qstashCfg != nil {
		followUp = qstashx.MustNew(*qstashCfg)
	}

	deps := orchestrator.Deps{
		Model:       chatModel,
		Retriever:   m.InstrumentRetriever(answerer),
		CRM:         crm,
		FollowUp:    followUp,
		Hooks:       m.Hooks(),
		CallStarted: m.CallStarted,
	}
	if len(audit) > 0 {
		deps.Audit = audit
	}

	orch, err := orchestrator.New(deps, orchestrator.Config{
		MaxToolSteps:  llmCfg.MaxToolSteps,
		FillerPhrases: appCfg.FillerPhrases,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestrator")
	}

	dialer := server.DialerFunc(func(ctx context.Context, sessionID, contactID string) (server.Call, error) {
		call, err := orch.Dial(ctx, orchestrator.DialInput{SessionID: sessionID, ContactID: contactID})
		if err != nil {
			return nil, err
		}
		return call, nil
	})

	srvOpts = append(srvOpts,
		server.WithMetricsHandler(m.Handler()),
		server.WithLogger(log.Logger),
		server.WithIdleTimeout(httpCfg.IdleTimeout),
		server.WithStreamURL(httpCfg.StreamURL),
	)
	if crm != nil {
		srvOpts = append(srvOpts, server.WithCRM(crm))
	}
	srv, err := server.New(dialer, srvOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize http server")
	}

	if err := srv.ListenAndServe(ctx, *httpCfg); err != nil {
		log.Fatal().Err(err).Msg("http server stopped")
	}
	log.Info().Msg("shutdown complete")
}

func mustOptional[T any](prefix string) *T {
	conf, err := configx.NewOptional[T](prefix)
	if err != nil {
		log.Fatal().Err(err).Str("prefix", prefix).Msg("invalid config")
	}
	return conf
}
