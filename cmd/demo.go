package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ranswarm/ranswarm/pkg/agent"
	"github.com/ranswarm/ranswarm/pkg/federation"
	"github.com/ranswarm/ranswarm/pkg/lifecycle"
	"github.com/ranswarm/ranswarm/pkg/qlearning"
)

var (
	demoEpisodes int

	demoCmd = &cobra.Command{
		Use:          "demo",
		Short:        "Run a local two-agent learning demonstration",
		Long:         longDemo,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context())
		},
	}

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().IntVarP(&demoEpisodes, "episodes", "e", 30, "learning episodes per agent")
}

// demoKnowledge holds a small seed corpus per feature.
var demoKnowledge = map[string][]agent.KnowledgeEntry{
	"handover": {
		{Content: "handover hysteresis suppresses ping-pong between neighboring cells", Tags: []string{"mobility"}},
		{Content: "time-to-trigger delays the handover decision until the measurement is stable", Tags: []string{"mobility"}},
		{Content: "a3 offset shifts the point where a neighbor is considered better", Tags: []string{"mobility"}},
	},
	"carrier-aggregation": {
		{Content: "scell activation needs a measurement gap configuration on the ue", Tags: []string{"throughput"}},
		{Content: "cross-carrier scheduling moves control signalling to the pcell", Tags: []string{"throughput"}},
		{Content: "band combinations limit which carriers can be aggregated", Tags: []string{"throughput"}},
	},
}

// localPeer adapts an in-process agent to the federation peer interface.
type localPeer struct {
	source *agent.FeatureAgent
}

func (p *localPeer) ID() string { return p.source.ID() }

func (p *localPeer) FetchEntries(ctx context.Context) (map[string]qlearning.Entry, error) {
	return p.source.ExportQTable(), nil
}

func runDemo(ctx context.Context) error {
	bus := lifecycle.NewMemoryBus()
	events := bus.Subscribe()

	var agents []*agent.FeatureAgent

	for i, feature := range []string{"handover", "carrier-aggregation"} {
		config := agentConfig("agent-"+feature, feature, int64(i+1))
		config.ColdStartThreshold = 5

		embedder, err := newEmbedder()
		if err != nil {
			return err
		}

		fa := agent.NewFeatureAgent(config, embedder, bus)
		if err := fa.LoadKnowledge(ctx, demoKnowledge[feature]); err != nil {
			return err
		}

		agents = append(agents, fa)
	}

	queries := map[string][]agent.Query{
		"handover": {
			{Text: "users bounce between cells at the edge", QueryType: "fault", Complexity: "high"},
			{Text: "how do I tune time-to-trigger", QueryType: "config", Complexity: "medium"},
			{Text: "handover success rate dropped overnight", QueryType: "performance", Complexity: "high"},
		},
		"carrier-aggregation": {
			{Text: "scell never activates for some devices", QueryType: "fault", Complexity: "high"},
			{Text: "which bands can be combined", QueryType: "config", Complexity: "low"},
			{Text: "aggregated throughput below expectation", QueryType: "performance", Complexity: "medium"},
		},
	}

	for _, fa := range agents {
		for episode := 0; episode < demoEpisodes; episode++ {
			query := queries[fa.Feature()][episode%len(queries[fa.Feature()])]

			response, err := fa.HandleQuery(ctx, query)
			if err != nil {
				return err
			}

			// Simulated operator feedback: direct and contextual answers
			// resolve most issues, escalation is costly.
			reward := qlearning.SuccessReward()
			switch response.Action {
			case qlearning.Escalate:
				reward = qlearning.FailureReward()
			case qlearning.ConsultPeer:
				reward = reward.WithConsultationCost(0.1)
			case qlearning.RequestClarification:
				reward = qlearning.RewardFromRating(0.1)
			}

			if err := fa.Feedback(reward); err != nil {
				return err
			}

			fa.CompleteEpisode()
		}
	}

	// One federation round: each agent pulls the other's table.
	for i, fa := range agents {
		syncer := federation.NewSyncer(fa, nil)
		syncer.AddPeer(&localPeer{source: agents[(i+1)%len(agents)]})

		result, err := syncer.Sync(ctx)
		if err != nil {
			return err
		}

		log.Info("federation round complete", "agent", fa.ID(), "merged", result.MergedEntries)
	}

	fmt.Println(titleStyle.Render("ranswarm demo"))
	for _, fa := range agents {
		printAgentSummary(fa)
	}

	drained := 0
	for len(events) > 0 {
		<-events
		drained++
	}
	fmt.Printf("%s %s\n",
		labelStyle.Render("domain events published:"),
		valueStyle.Render(fmt.Sprintf("%d", drained)),
	)

	return nil
}

func printAgentSummary(fa *agent.FeatureAgent) {
	stats := fa.Stats()

	fmt.Println(titleStyle.Render("\n" + fa.ID()))
	fmt.Printf("%s %s\n", labelStyle.Render("state:"), valueStyle.Render(fmt.Sprintf("%v", stats["state"])))
	fmt.Printf("%s %s\n", labelStyle.Render("interactions:"), valueStyle.Render(fmt.Sprintf("%v", stats["interactions"])))
	fmt.Printf("%s %s\n", labelStyle.Render("memories:"), valueStyle.Render(fmt.Sprintf("%v", stats["memories"])))
	fmt.Printf("%s %s\n", labelStyle.Render("q-table:"), valueStyle.Render(fmt.Sprintf("%+v", stats["qtable"])))
	fmt.Printf("%s %s\n", labelStyle.Render("trajectories:"), valueStyle.Render(fmt.Sprintf("%+v", stats["trajectories"])))
}

var longDemo = `
Demo runs two feature agents through their full lifecycle locally: seed
knowledge, cold start, a batch of query/feedback episodes, and one
federated merge between the two Q-tables. No external services required.
`
