package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trait-consensus/internal/config"
	"trait-consensus/internal/llm"
	"trait-consensus/internal/service"
)

type runFlags struct {
	questionnaire string
	runID         string
	subjectID     string
	asJSON        bool
	verbose       bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "consensus_check",
		Short:        "Corre el motor de consenso Big Five contra un cuestionario",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newTokenCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evalua un cuestionario respondido y muestra el reporte",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runQuestionnaire(ctx, cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.questionnaire, "questionnaire", "q", "", "archivo YAML/JSON con las respuestas (default QUESTIONNAIRE_FILE)")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "id de corrida; reutilizarlo retoma desde los checkpoints")
	cmd.Flags().StringVar(&f.subjectID, "subject", "", "id del sujeto evaluado")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "imprime el reporte completo en JSON")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "logs de desarrollo")
	return cmd
}

func runQuestionnaire(ctx context.Context, cmd *cobra.Command, f runFlags) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := zap.NewNop()
	if f.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	defer logger.Sync()

	path := f.questionnaire
	if path == "" {
		path = cfg.QuestionnaireFile
	}
	if path == "" {
		return errors.New("no questionnaire file: use --questionnaire or QUESTIONNAIRE_FILE")
	}

	rubric := service.DefaultRubric()
	if cfg.RubricFile != "" {
		if rubric, err = service.LoadRubricFile(cfg.RubricFile); err != nil {
			return err
		}
	}

	registry, err := llm.NewHTTPRegistry(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EvaluatorModels, logger)
	if err != nil {
		return err
	}

	store := service.NewMemoryCheckpointStore()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx).Err(); err == nil {
			store = service.NewRedisCheckpointStore(client, cfg.CheckpointTTL)
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), yellow("redis no disponible, checkpoints en memoria: "+err.Error()))
		}
		cancel()
	}

	gateway := service.NewEvaluatorGateway(registry, rubric, cfg.EvaluatorTimeout, logger)
	svc, err := service.NewConsensusService(gateway, registry.IDs(), store, nil, service.ConsensusOptionsFromConfig(cfg), logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s (%d evaluadores)\n", cyan("[Cuestionario]"), path, registry.Len())

	report, err := svc.RunFromSource(ctx, f.runID, f.subjectID, service.FileQuestionnaireSource{Path: path})
	if err != nil && !errors.Is(err, service.ErrNothingGraded) {
		return err
	}

	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return encErr
		}
	} else {
		printReport(out, report)
	}
	return err
}

func newTokenCmd() *cobra.Command {
	var (
		clientID string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Emite un token de cliente para la API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := service.NewJWTService(secret, ttl).IssueToken(clientID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "id del cliente")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "vigencia del token")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}
