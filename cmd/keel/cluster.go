package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keeldb/keel/pkg/api"
	"github.com/keeldb/keel/pkg/client"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage clusters",
}

var clusterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered clusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel := apiClient(cmd)
		defer cancel()

		clusters, err := c.ListClusters(ctx)
		if err != nil {
			return err
		}
		if len(clusters) == 0 {
			fmt.Println("No clusters registered")
			return nil
		}

		fmt.Printf("%-12s %-24s %-8s %-10s %-6s %s\n",
			"NAMESPACE", "CLUSTER", "ENABLED", "APPROVALS", "NODES", "STORE")
		for _, cl := range clusters {
			fmt.Printf("%-12s %-24s %-8t %-10t %-6d %s\n",
				cl.NsID, cl.ClusterID, cl.Enabled, cl.Approvals, cl.NodeCount, cl.Store)
		}
		return nil
	},
}

var clusterApplyCmd = &cobra.Command{
	Use:   "apply NAMESPACE CLUSTER",
	Short: "Create or update a cluster's settings",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, _ := cmd.Flags().GetBool("enabled")
		approvals, _ := cmd.Flags().GetBool("approvals")
		nodeCount, _ := cmd.Flags().GetInt("node-count")
		store, _ := cmd.Flags().GetString("store")

		c, ctx, cancel := apiClient(cmd)
		defer cancel()

		settings, err := c.PutCluster(ctx, args[0], args[1], api.ClusterRequest{
			Enabled:   enabled,
			Approvals: approvals,
			NodeCount: nodeCount,
			Store:     store,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Cluster %s/%s saved (enabled=%t, nodes=%d)\n",
			settings.NsID, settings.ClusterID, settings.Enabled, settings.NodeCount)
		return nil
	},
}

var clusterNodesCmd = &cobra.Command{
	Use:   "nodes NAMESPACE CLUSTER",
	Short: "Show the last known node states of a cluster",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel := apiClient(cmd)
		defer cancel()

		nodes, err := c.ListNodes(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if len(nodes) == 0 {
			fmt.Println("No nodes reported")
			return nil
		}

		fmt.Printf("%-20s %-10s %-12s %-24s %s\n",
			"NODE", "STATUS", "KIND", "ADDRESS", "LAST SEEN")
		for _, n := range nodes {
			fmt.Printf("%-20s %-10s %-12s %-24s %s\n",
				n.NodeID, n.Status, n.Kind, n.MemberAddress, n.LastSeen.Format(time.RFC3339))
		}
		return nil
	},
}

var clusterReportsCmd = &cobra.Command{
	Use:   "reports NAMESPACE CLUSTER",
	Short: "Show a cluster's orchestration reports",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel := apiClient(cmd)
		defer cancel()

		reports, err := c.ListReports(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Println("No reports recorded")
			return nil
		}

		fmt.Printf("%-25s %-10s %-6s %-10s %s\n",
			"START", "MODE", "NODES", "PROGRESSED", "OUTCOME")
		for _, rep := range reports {
			fmt.Printf("%-25s %-10s %-6d %-10d %s\n",
				rep.StartTime.Format(time.RFC3339), rep.Mode,
				rep.NodesCount, rep.ActionsProgressed, rep.Outcome)
		}
		return nil
	},
}

var clusterOrchestrateCmd = &cobra.Command{
	Use:   "orchestrate NAMESPACE CLUSTER",
	Short: "Trigger a manual orchestration cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("expected NAMESPACE and CLUSTER arguments")
		}

		c, ctx, cancel := apiClient(cmd)
		defer cancel()

		if err := c.Orchestrate(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ Orchestration cycle queued for %s/%s\n", args[0], args[1])
		return nil
	},
}

func init() {
	clusterCmd.AddCommand(clusterListCmd)
	clusterCmd.AddCommand(clusterApplyCmd)
	clusterCmd.AddCommand(clusterNodesCmd)
	clusterCmd.AddCommand(clusterReportsCmd)
	clusterCmd.AddCommand(clusterOrchestrateCmd)

	clusterCmd.PersistentFlags().String("api", "http://localhost:8080", "Admin API base URL")

	clusterApplyCmd.Flags().Bool("enabled", true, "Enable orchestration for the cluster")
	clusterApplyCmd.Flags().Bool("approvals", false, "Require approval for new actions")
	clusterApplyCmd.Flags().Int("node-count", 1, "Desired number of database nodes")
	clusterApplyCmd.Flags().String("store", "", "Database software the cluster runs")
	_ = clusterApplyCmd.MarkFlagRequired("store")
}

// apiClient builds the admin API client from the command's --api flag.
func apiClient(cmd *cobra.Command) (*client.Client, context.Context, context.CancelFunc) {
	baseURL, _ := cmd.Flags().GetString("api")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	return client.NewClient(baseURL), ctx, cancel
}
