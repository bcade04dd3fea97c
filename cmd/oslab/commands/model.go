package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/machzqcq/oslab-go/internal/mlcommons"
)

// NewModelCmd constructs the `oslab model` command group for the ML Commons
// model lifecycle: cluster trust settings, model groups, connectors,
// registration, deployment, and prediction.
func NewModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage ML Commons models and connectors",
	}

	cmd.AddCommand(
		newModelSetupCmd(),
		newModelGroupCmd(),
		newModelConnectorCmd(),
		newModelRegisterCmd(),
		newModelDeployCmd(),
		newModelUndeployCmd(),
		newModelDeleteCmd(),
		newModelStatusCmd(),
		newModelPredictCmd(),
	)

	return cmd
}

func newModelSetupCmd() *cobra.Command {
	var trusted []string
	var allowNonML bool
	var memory bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Apply ML Commons cluster settings",
		Long: `Write the persistent cluster settings remote models need: trusted
connector endpoint regexes, execution on non-ML nodes (single-node demo
clusters), and the agent memory feature.

Examples:
  oslab model setup --allow-non-ml-nodes
  oslab model setup --trust "^https://api\.openai\.com/.*$" --memory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ml := mlcommons.New(client)
			err = ml.ApplyClusterSettings(cmd.Context(), mlcommons.ClusterSettings{
				TrustedEndpoints: trusted,
				AllowNonMLNodes:  allowNonML,
				EnableMemory:     memory,
			})
			if err != nil {
				return fmt.Errorf("model setup: %w", err)
			}
			fmt.Println("cluster settings applied")
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&trusted, "trust", nil, "Trusted connector endpoint regex (repeatable)")
	cmd.Flags().BoolVar(&allowNonML, "allow-non-ml-nodes", false, "Permit model execution on data nodes")
	cmd.Flags().BoolVar(&memory, "memory", false, "Enable conversational memory and the agent framework")

	return cmd
}

func newModelGroupCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "group [name]",
		Short: "Create a model group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			id, err := mlcommons.New(client).CreateModelGroup(cmd.Context(), args[0], description)
			if err != nil {
				return fmt.Errorf("model group: %w", err)
			}
			fmt.Printf("model group %s: %s\n", args[0], id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Model group description")

	return cmd
}

func newModelConnectorCmd() *cobra.Command {
	var provider string
	var model string
	var endpoint string
	var bodyPath string

	cmd := &cobra.Command{
		Use:   "connector",
		Short: "Create a remote model connector",
		Long: `Create a connector for a remote model provider. Built-in bodies exist
for openai, openai-embedding, anthropic, ollama, and deepseek; anything else
can be supplied verbatim with --body. API keys come from the provider's usual
environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, DEEPSEEK_API_KEY).

Examples:
  oslab model connector --provider openai --model gpt-4o-mini
  oslab model connector --provider ollama --model llama3.2 --endpoint http://host.docker.internal:11434
  oslab model connector --body connector.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ml := mlcommons.New(client)

			var conn mlcommons.Connector
			switch {
			case bodyPath != "":
				if err := readJSONFile(bodyPath, &conn); err != nil {
					return err
				}
			case provider == "openai":
				conn = mlcommons.OpenAIChatConnector(os.Getenv("OPENAI_API_KEY"), model)
			case provider == "openai-embedding":
				conn = mlcommons.OpenAIEmbeddingConnector(os.Getenv("OPENAI_API_KEY"), model)
			case provider == "anthropic":
				conn = mlcommons.AnthropicChatConnector(os.Getenv("ANTHROPIC_API_KEY"), model)
			case provider == "ollama":
				conn = mlcommons.OllamaChatConnector(endpoint, model)
			case provider == "deepseek":
				conn = mlcommons.DeepSeekChatConnector(os.Getenv("DEEPSEEK_API_KEY"), model)
			default:
				return fmt.Errorf("model connector: unknown provider %q (want openai, openai-embedding, anthropic, ollama, deepseek, or --body)", provider)
			}

			id, err := ml.CreateConnector(cmd.Context(), conn)
			if err != nil {
				return fmt.Errorf("model connector: %w", err)
			}
			fmt.Printf("connector: %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Provider: openai, openai-embedding, anthropic, ollama, deepseek")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Remote model name")
	cmd.Flags().StringVar(&endpoint, "endpoint", "http://localhost:11434", "Ollama endpoint URL")
	cmd.Flags().StringVarP(&bodyPath, "body", "b", "", "JSON file with a full connector definition")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [connector-id]",
		Short: "Delete a connector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := mlcommons.New(client).DeleteConnector(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("connector delete: %w", err)
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func newModelRegisterCmd() *cobra.Command {
	var name string
	var version string
	var format string
	var groupID string
	var connectorID string
	var deploy bool
	var wait bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a pretrained or remote model",
		Long: `Register a model. With --connector-id the model is remote
(function_name=remote); otherwise --name/--version/--format describe a
pretrained model from the OpenSearch model repository. --deploy deploys in
the same call, and --wait polls the registration task with bounded backoff
until it yields a model id.

Examples:
  oslab model register --name huggingface/sentence-transformers/all-MiniLM-L6-v2 \
    --version 1.0.1 --format TORCH_SCRIPT --deploy --wait
  oslab model register --name gpt-4o-mini --connector-id Ab12... --deploy --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("model register: --name is required")
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			ml := mlcommons.New(client)

			body := map[string]any{"name": name}
			if connectorID != "" {
				body["function_name"] = "remote"
				body["connector_id"] = connectorID
			} else {
				if version == "" || format == "" {
					return fmt.Errorf("model register: pretrained models need --version and --format")
				}
				body["version"] = version
				body["model_format"] = format
			}
			if groupID != "" {
				body["model_group_id"] = groupID
			}

			taskID, err := ml.RegisterModel(cmd.Context(), body, deploy)
			if err != nil {
				return fmt.Errorf("model register: %w", err)
			}
			fmt.Printf("registration task: %s\n", taskID)

			if !wait {
				return nil
			}

			modelID, err := ml.WaitForTask(cmd.Context(), taskID, mlcommons.DefaultWaitConfig())
			if err != nil {
				return fmt.Errorf("model register: %w", err)
			}
			fmt.Printf("model: %s\n", modelID)

			if deploy {
				if err := ml.WaitForModelDeployed(cmd.Context(), modelID, mlcommons.DefaultWaitConfig()); err != nil {
					return fmt.Errorf("model register: %w", err)
				}
				fmt.Println("model deployed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Model name (pretrained path or label for remote)")
	cmd.Flags().StringVar(&version, "version", "", "Pretrained model version")
	cmd.Flags().StringVar(&format, "format", "", "Pretrained model format (TORCH_SCRIPT, ONNX)")
	cmd.Flags().StringVar(&groupID, "group-id", "", "Model group id")
	cmd.Flags().StringVar(&connectorID, "connector-id", "", "Connector id for a remote model")
	cmd.Flags().BoolVar(&deploy, "deploy", false, "Deploy as soon as registration completes")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll the registration task until it completes")

	return cmd
}

func newModelDeployCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "deploy [model-id]",
		Short: "Deploy a registered model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ml := mlcommons.New(client)

			taskID, err := ml.DeployModel(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("model deploy: %w", err)
			}
			fmt.Printf("deploy task: %s\n", taskID)

			if wait {
				if err := ml.WaitForModelDeployed(cmd.Context(), args[0], mlcommons.DefaultWaitConfig()); err != nil {
					return fmt.Errorf("model deploy: %w", err)
				}
				fmt.Println("model deployed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Poll model state until DEPLOYED")

	return cmd
}

func newModelUndeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undeploy [model-id]",
		Short: "Undeploy a model from all nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := mlcommons.New(client).UndeployModel(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("model undeploy: %w", err)
			}
			fmt.Printf("undeployed %s\n", args[0])
			return nil
		},
	}
}

func newModelDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [model-id]",
		Short: "Delete an undeployed model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := mlcommons.New(client).DeleteModel(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("model delete: %w", err)
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func newModelStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [model-id]",
		Short: "Show model metadata and deployment state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			m, err := mlcommons.New(client).GetModel(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("model status: %w", err)
			}
			return printJSON(m)
		},
	}
}

func newModelPredictCmd() *cobra.Command {
	var bodyPath string

	cmd := &cobra.Command{
		Use:   "predict [model-id]",
		Short: "Run a prediction against a deployed model",
		Long: `Invoke a deployed model with a raw prediction payload and print the raw
response.

Example:
  echo '{"parameters":{"messages":[{"role":"user","content":"hi"}]}}' | \
    oslab model predict Ab12... --body -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			var body map[string]any
			if err := readJSONFile(bodyPath, &body); err != nil {
				return err
			}
			raw, err := mlcommons.New(client).Predict(cmd.Context(), args[0], body)
			if err != nil {
				return fmt.Errorf("model predict: %w", err)
			}
			var pretty any
			if err := json.Unmarshal(raw, &pretty); err != nil {
				fmt.Println(string(raw))
				return nil
			}
			return printJSON(pretty)
		},
	}

	cmd.Flags().StringVarP(&bodyPath, "body", "b", "", "JSON file with the prediction payload (\"-\" for stdin)")
	_ = cmd.MarkFlagRequired("body")

	return cmd
}
