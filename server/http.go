package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"worker-pipeline/auth"
	"worker-pipeline/config"
	"worker-pipeline/constant"
	"worker-pipeline/detector"
	"worker-pipeline/dto"
	"worker-pipeline/entities"
	jobHandler "worker-pipeline/handler"
	"worker-pipeline/intake"
	"worker-pipeline/media"
	"worker-pipeline/pipeline"
	"worker-pipeline/pkg/rabbitmq"
	"worker-pipeline/repository"
	"worker-pipeline/storage"
	"worker-pipeline/summarize"
	"worker-pipeline/transcribe"
	"worker-pipeline/transcribe/google"
	"worker-pipeline/transcribe/mock"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("NewRabbitMQConn")
	}

	db, err := repository.Open(cfg.DB)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("open database")
	}
	segments := repository.NewSegmentRepository(db)
	sessions := repository.NewSessionRepository(db)

	store := storage.NewMinioStore(cfg.Storage, cfg.Bucket)

	var transcriber transcribe.Client
	if cfg.Speech.UseMock {
		transcriber = mock.New(store)
	} else {
		transcriber, err = google.New(ctx, store, google.Config{
			LanguageCode:    cfg.Speech.LanguageCode,
			MaxSpeakers:     cfg.Speech.MaxSpeakers,
			SampleRateHertz: cfg.Speech.SampleRateHertz,
			ModelVersion:    cfg.Speech.Model,
			PipelineVersion: cfg.Pipeline.Version,
			CredentialsFile: cfg.Speech.CredentialsFile,
		})
		if err != nil {
			zerolog.Ctx(ctx).Fatal().Err(err).Msg("speech client")
		}
	}

	summarizer := summarize.NewOpenAIClient(summarize.OpenAIConfig{
		BaseURL:   cfg.Summarizer.BaseURL,
		APIKey:    cfg.Summarizer.APIKey,
		Model:     cfg.Summarizer.Model,
		MaxTokens: cfg.Summarizer.MaxTokens,
	})

	publisher, err := rabbitmq.NewStepPublisher(conn, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("step publisher")
	}
	defer publisher.Close()

	transcoder := media.NewFFmpegTranscoder(store, cfg.Pipeline.WorkDir)
	stages := pipeline.NewStages(sessions, store, transcoder, transcriber, summarizer, cfg.Pipeline.Version)
	runner := pipeline.NewRunner(sessions, stages, publisher, pipeline.Policy{
		PollInterval:       cfg.Pipeline.PollInterval,
		TranscribeDeadline: cfg.Pipeline.TranscribeDeadline,
		RetryBase:          cfg.Pipeline.RetryBase,
		MaxAttempts:        cfg.Pipeline.MaxAttempts,
	})

	launcher := pipeline.NewLauncher(publisher)
	det := detector.New(segments, sessions, launcher, cfg.Bucket, cfg.Pipeline.Version)
	listener := intake.NewListener(segments, store, det)

	serviceDeps := jobHandler.ServiceDependencies{
		Listener: listener,
		Runner:   runner,
	}

	uploadConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.ChunkEventsSpec, cfg.Server.Workers, jobHandler.UploadEventHandler)
	go func() {
		if err := uploadConsumer.Consume(ctx, serviceDeps); err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("upload event consumer error")
		}
	}()

	stepConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.PipelineStepSpec, cfg.Server.Workers, jobHandler.StepHandler)
	go func() {
		if err := stepConsumer.Consume(ctx, serviceDeps); err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("pipeline step consumer error")
		}
	}()

	exchanger := auth.NewExchanger(cfg.Auth.STSEndpoint, cfg.Auth.SessionDuration, []byte(cfg.Auth.TokenSecret))

	r := gin.Default()
	addHealth(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	addSessionRoutes(r, sessions, det, []byte(cfg.Auth.TokenSecret))
	addCredentialRoutes(r, exchanger)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := handler.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

// addSessionRoutes exposes the declaration write and the status read. Both
// verify the caller's token scope against the tenant named in the request.
func addSessionRoutes(r *gin.Engine, sessions repository.SessionRepository, det *detector.Detector, secret []byte) {
	r.POST("/v1/sessions", func(c *gin.Context) {
		scope, ok := requireScope(c, secret)
		if !ok {
			return
		}

		var decl dto.SessionDeclaration
		if err := c.ShouldBindJSON(&decl); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := scope.Require(decl.TenantId); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}

		count := decl.ExpectedSegmentCount
		session := &entities.Session{
			TenantId:             decl.TenantId,
			SessionId:            decl.SessionId,
			ExpectedSegmentCount: &count,
			TotalDurationSeconds: decl.TotalDurationSeconds,
		}
		if err := sessions.Declare(c.Request.Context(), session); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record declaration"})
			return
		}

		// The declaration may be the last arrival; re-check completeness.
		result, err := det.Check(c.Request.Context(), decl.TenantId, decl.SessionId)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Error().Err(err).
				Str("session_id", decl.SessionId).
				Msg("completeness check after declaration failed")
		}

		c.JSON(http.StatusAccepted, result)
	})

	r.GET("/v1/sessions/:id", func(c *gin.Context) {
		scope, ok := requireScope(c, secret)
		if !ok {
			return
		}

		session, err := sessions.Get(c.Request.Context(), scope.TenantId, c.Param("id"))
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}

		c.JSON(http.StatusOK, session)
	})
}

func addCredentialRoutes(r *gin.Engine, exchanger *auth.Exchanger) {
	r.POST("/v1/credentials", func(c *gin.Context) {
		var req dto.CredentialExchangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := exchanger.Exchange(c.Request.Context(), req)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrTokenExpired) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "credential exchange failed"})
			return
		}

		c.JSON(http.StatusOK, resp)
	})
}

func requireScope(c *gin.Context, secret []byte) (auth.Scope, bool) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	scope, err := auth.ParseScope(token, secret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return auth.Scope{}, false
	}
	return scope, true
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
