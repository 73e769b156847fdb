package tests

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
)

type NodeConfig struct {
	Binary     string `json:"binary"`
	PortNumber string `json:"portNumber"`
	ChainId    string `json:"chainId"`
}

// StartNode runs an in-memory rollup node and waits until it answers RPC
func StartNode(ctx context.Context, cfg *NodeConfig) (*exec.Cmd, error) {
	args := []string{
		"--port", cfg.PortNumber,
		"--chain-id", cfg.ChainId,
		"run",
	}
	fmt.Printf("Starting %s with args: %v\n", cfg.Binary, args)
	cmd := exec.CommandContext(ctx, cfg.Binary, args...)
	cmd.Stderr = os.Stderr

	if os.Getenv("JOIN_NODE_OUTPUT") == "true" {
		cmd.Stdout = os.Stdout
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cfg.Binary, err)
	}

	rpcUrl := fmt.Sprintf("http://localhost:%s", cfg.PortNumber)

	for i := 1; i < 10; i++ {
		res, err := http.Post(rpcUrl, "application/json", nil)
		if err == nil {
			_ = res.Body.Close()
			if res.StatusCode == http.StatusOK {
				fmt.Println("Node is up and running")
				return cmd, nil
			}
		}
		fmt.Printf("Node not ready yet, retrying... %d\n", i)
		time.Sleep(time.Second * time.Duration(i))
	}

	_ = KillNode(cmd)
	return nil, fmt.Errorf("node did not become ready on %s", rpcUrl)
}

// StartInMemoryNode starts anvil-zksync on the port and chain id of the
// project's chain config.
func StartInMemoryNode(projectRoot string, ctx context.Context) (*exec.Cmd, error) {
	chainConfig, err := ReadChainConfig(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain config: %w", err)
	}

	return StartNode(ctx, &NodeConfig{
		Binary:     "anvil-zksync",
		PortNumber: "8011",
		ChainId:    fmt.Sprintf("%d", chainConfig.ChainId),
	})
}

func WaitForNode(
	wg *sync.WaitGroup,
	ctx context.Context,
	t *testing.T,
	ethereumClient ethereum.Client,
	errorsChan chan error,
) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			t.Logf("Node did not come up: %v", ctx.Err())
			errorsChan <- fmt.Errorf("node did not come up: %w", ctx.Err())
			return
		case <-time.After(2 * time.Second):
			block, err := ethereumClient.GetLatestBlock(ctx)
			if err != nil {
				t.Logf("Failed to get latest block, will retry: %v", err)
				continue
			}
			t.Logf("Node is up and running, latest block: %v", block)
			return
		}
	}
}

func KillNode(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("node command is not running")
	}

	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill node process: %w", err)
	}
	_ = cmd.Wait()
	return nil
}
