// Package main provides the inqgraph CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inqgraph/inqgraph/pkg/adaptive"
	"github.com/inqgraph/inqgraph/pkg/config"
	"github.com/inqgraph/inqgraph/pkg/graph"
	"github.com/inqgraph/inqgraph/pkg/logging"
	"github.com/inqgraph/inqgraph/pkg/persist"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "inqgraph",
		Short: "Inquiry ontology graph and inference engines",
		Long: `inqgraph maintains a typed knowledge graph of a learner's inquiry
trajectory and infers the next pedagogical action from it.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")

	root.AddCommand(versionCmd(), validateCmd(), importCmd(), exportCmd(), suggestCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config, logger, schema, and opens the graph over the stored
// snapshot.
func setup() (*config.Config, *zap.Logger, *graph.Store, *persist.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	sch := schema.Default()
	if cfg.SchemaFile != "" {
		if sch, err = schema.Load(cfg.SchemaFile); err != nil {
			return nil, nil, nil, nil, err
		}
	}

	store, err := persist.Open(cfg.DataDir, log)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	g := graph.New(sch, log)
	return cfg, log, g, store, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("inqgraph %s (%s)\n", version, commit)
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config and schema, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.SchemaFile != "" {
				if _, err := schema.Load(cfg.SchemaFile); err != nil {
					return err
				}
			}
			fmt.Println("config and schema OK")
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	var snapshot string
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a JSONL graph export into the snapshot store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, g, store, err := setup()
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			stats, err := g.Import(f)
			if err != nil {
				return err
			}
			if err := store.SaveSnapshot(snapshot, g); err != nil {
				return err
			}
			fmt.Printf("imported %d nodes, %d edges (%d skipped)\n",
				stats.Nodes, stats.Edges, stats.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshot, "snapshot", "default", "snapshot name")
	return cmd
}

func exportCmd() *cobra.Command {
	var snapshot string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored snapshot as JSONL to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, g, store, err := setup()
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := store.LoadSnapshot(snapshot, g); err != nil {
				return err
			}
			return g.Export(os.Stdout)
		},
	}
	cmd.Flags().StringVar(&snapshot, "snapshot", "default", "snapshot name")
	return cmd
}

func suggestCmd() *cobra.Command {
	var snapshot, nodeID string
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Run adaptive inference for a node in the stored snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, g, store, err := setup()
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := store.LoadSnapshot(snapshot, g); err != nil {
				return err
			}
			engine := adaptive.New(g, log, adaptive.WithPersister(store))
			if err := store.LoadModels(engine); err != nil {
				return err
			}

			res, infID, err := engine.InferNextStepAdvanced(nodeID, nil)
			if err != nil {
				return err
			}
			fmt.Printf("inference %s\n", infID)
			fmt.Printf("  rule:        %s\n", res.AppliedRule)
			fmt.Printf("  support:     %s\n", res.SupportType)
			fmt.Printf("  acts:        %v\n", res.Acts)
			if res.NextNodeType != "" {
				fmt.Printf("  next node:   %s\n", res.NextNodeType)
			}
			fmt.Printf("  confidence:  %.2f\n", res.Confidence)
			fmt.Printf("  reason:      %s\n", res.Reason)
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshot, "snapshot", "default", "snapshot name")
	cmd.Flags().StringVar(&nodeID, "node", "", "node id to infer from")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}
