package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/machzqcq/oslab-go/internal/mlcommons"
)

// NewAgentCmd constructs the `oslab agent` command group for the ML Commons
// agent framework.
func NewAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage and run ML Commons agents",
	}

	cmd.AddCommand(
		newAgentRegisterCmd(),
		newAgentGetCmd(),
		newAgentExecuteCmd(),
		newAgentDeleteCmd(),
	)

	return cmd
}

func newAgentRegisterCmd() *cobra.Command {
	var kind string
	var index string
	var embeddingField string
	var sourceField string
	var embeddingModelID string
	var llmModelID string
	var bodyPath string

	cmd := &cobra.Command{
		Use:   "register [name]",
		Short: "Register an agent",
		Long: `Register an agent. --kind rag builds a flow agent that retrieves from an
index with a neural query and answers with an LLM; --kind planner builds a
plan-execute-reflect agent with the cluster inspection tools. Any other shape
can be supplied verbatim with --body.

Examples:
  oslab agent register docs-rag --kind rag --index docs \
    --embedding-model-id Ab12... --llm-model-id Cd34...
  oslab agent register ops-planner --kind planner --llm-model-id Cd34...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ml := mlcommons.New(client)

			var agent mlcommons.Agent
			switch {
			case bodyPath != "":
				if err := readJSONFile(bodyPath, &agent); err != nil {
					return err
				}
			case kind == "rag":
				if index == "" || embeddingModelID == "" || llmModelID == "" {
					return fmt.Errorf("agent register: rag agents need --index, --embedding-model-id, and --llm-model-id")
				}
				agent = mlcommons.RAGFlowAgent(args[0], index, embeddingField, sourceField, embeddingModelID, llmModelID)
			case kind == "planner":
				if llmModelID == "" {
					return fmt.Errorf("agent register: planner agents need --llm-model-id")
				}
				agent = mlcommons.PlanExecuteReflectAgent(args[0], llmModelID)
			default:
				return fmt.Errorf("agent register: unknown kind %q (want rag, planner, or --body)", kind)
			}

			id, err := ml.RegisterAgent(cmd.Context(), agent)
			if err != nil {
				return fmt.Errorf("agent register: %w", err)
			}
			fmt.Printf("agent %s: %s\n", args[0], id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Agent kind: rag or planner")
	cmd.Flags().StringVar(&index, "index", "", "Index the rag agent retrieves from")
	cmd.Flags().StringVar(&embeddingField, "embedding-field", "embedding", "Vector field queried by the rag agent")
	cmd.Flags().StringVar(&sourceField, "source-field", "content", "Source field handed to the LLM as context")
	cmd.Flags().StringVar(&embeddingModelID, "embedding-model-id", "", "Deployed embedding model id")
	cmd.Flags().StringVar(&llmModelID, "llm-model-id", "", "Deployed chat model id")
	cmd.Flags().StringVarP(&bodyPath, "body", "b", "", "JSON file with a full agent definition")

	return cmd
}

func newAgentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [agent-id]",
		Short: "Show an agent definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			agent, err := mlcommons.New(client).GetAgent(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("agent get: %w", err)
			}
			return printJSON(agent)
		},
	}
}

func newAgentExecuteCmd() *cobra.Command {
	var async bool
	var raw bool

	cmd := &cobra.Command{
		Use:   "execute [agent-id] [question]",
		Short: "Run an agent with a question",
		Long: `Execute an agent. Flow and conversational agents answer synchronously;
plan-execute-reflect agents can run for minutes, so --async submits the
execution as a task and polls it with bounded backoff until it finishes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ml := mlcommons.New(client)
			params := map[string]string{"question": args[1]}

			if async {
				taskID, err := ml.ExecuteAgentAsync(cmd.Context(), args[0], params)
				if err != nil {
					return fmt.Errorf("agent execute: %w", err)
				}
				fmt.Printf("execution task: %s\n", taskID)
				resp, err := ml.WaitForAgentTask(cmd.Context(), taskID, mlcommons.DefaultWaitConfig())
				if err != nil {
					return fmt.Errorf("agent execute: %w", err)
				}
				return printJSON(resp)
			}

			outputs, err := ml.ExecuteAgent(cmd.Context(), args[0], params)
			if err != nil {
				return fmt.Errorf("agent execute: %w", err)
			}
			if raw {
				return printJSON(outputs)
			}
			fmt.Println(mlcommons.ExtractAnswer(outputs))
			return nil
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "Submit as a task and poll (plan-execute-reflect agents)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print all agent outputs instead of the extracted answer")

	return cmd
}

func newAgentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [agent-id]",
		Short: "Delete an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := mlcommons.New(client).DeleteAgent(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("agent delete: %w", err)
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
