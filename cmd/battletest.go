package cmd

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ranswarm/ranswarm/pkg/agent"
	"github.com/ranswarm/ranswarm/pkg/lifecycle"
	"github.com/ranswarm/ranswarm/pkg/qlearning"
)

var (
	battleRounds int
	battleSeed   int64

	battletestCmd = &cobra.Command{
		Use:          "battletest",
		Short:        "Stress the learning loop with scripted adversarial traffic",
		Long:         longBattletest,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBattletest(cmd.Context())
		},
	}
)

func init() {
	rootCmd.AddCommand(battletestCmd)
	battletestCmd.Flags().IntVarP(&battleRounds, "rounds", "r", 500, "scripted query rounds")
	battletestCmd.Flags().Int64Var(&battleSeed, "seed", 1, "random seed for the traffic script")
}

// battleScenario scripts one class of traffic with a reward profile per
// action, so convergence toward the profitable action is measurable.
type battleScenario struct {
	query      agent.Query
	bestAction qlearning.Action
}

var battleScenarios = []battleScenario{
	{
		query:      agent.Query{Text: "cell outage reported by field team", QueryType: "fault", Complexity: "high"},
		bestAction: qlearning.Escalate,
	},
	{
		query:      agent.Query{Text: "what does hysteresis do", QueryType: "concept", Complexity: "low"},
		bestAction: qlearning.DirectAnswer,
	},
	{
		query:      agent.Query{Text: "throughput regression after parameter change", QueryType: "performance", Complexity: "medium"},
		bestAction: qlearning.ContextAnswer,
	},
	{
		query:      agent.Query{Text: "interaction with neighbouring feature unclear", QueryType: "config", Complexity: "high"},
		bestAction: qlearning.ConsultPeer,
	},
}

func runBattletest(ctx context.Context) error {
	config := agentConfig("agent-battletest", "battletest", battleSeed)
	config.ColdStartThreshold = 10

	embedder, err := newEmbedder()
	if err != nil {
		return err
	}

	fa := agent.NewFeatureAgent(config, embedder, lifecycle.NewMemoryBus())

	knowledge := []agent.KnowledgeEntry{
		{Content: "escalation paths exist for outages that field teams confirm"},
		{Content: "hysteresis adds a margin before a measurement event fires"},
		{Content: "parameter changes should be correlated with kpi regressions"},
	}
	if err := fa.LoadKnowledge(ctx, knowledge); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(battleSeed))
	correct := 0
	lastWindow := 0

	for round := 0; round < battleRounds; round++ {
		scenario := battleScenarios[rng.Intn(len(battleScenarios))]

		response, err := fa.HandleQuery(ctx, scenario.query)
		if err != nil {
			return err
		}

		// The scripted environment pays +1 for the profitable action and
		// -0.5 otherwise, with a small jitter so dedup still sees
		// distinct trajectories.
		reward := qlearning.RewardFromRating(-0.5 + rng.Float64()*0.05)
		if response.Action == scenario.bestAction {
			reward = qlearning.RewardFromRating(1 - rng.Float64()*0.05)
			correct++
			if round >= battleRounds-100 {
				lastWindow++
			}
		}

		if err := fa.Feedback(reward); err != nil {
			return err
		}

		if (round+1)%10 == 0 {
			fa.CompleteEpisode()
		}
	}
	fa.CompleteEpisode()

	printBattleReport(fa, correct, lastWindow)
	return nil
}

func printBattleReport(fa *agent.FeatureAgent, correct, lastWindow int) {
	good := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	bad := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	fmt.Println(titleStyle.Render("battletest report"))
	fmt.Printf("%s %s\n", labelStyle.Render("rounds:"), valueStyle.Render(fmt.Sprintf("%d", battleRounds)))
	fmt.Printf("%s %s\n", labelStyle.Render("profitable actions:"), valueStyle.Render(fmt.Sprintf("%d", correct)))

	rate := float64(lastWindow)
	window := float64(min(battleRounds, 100))
	verdict := good.Render("converging")
	if rate/window < 0.5 {
		verdict = bad.Render("not converging")
	}
	fmt.Printf("%s %s (%.0f%% of final window)\n", labelStyle.Render("verdict:"), verdict, 100*rate/window)

	fmt.Printf("%s %s\n", labelStyle.Render("q-table:"), valueStyle.Render(fmt.Sprintf("%+v", fa.Stats()["qtable"])))
	fmt.Printf("%s %s\n", labelStyle.Render("trajectories:"), valueStyle.Render(fmt.Sprintf("%+v", fa.Stats()["trajectories"])))
}

var longBattletest = `
Battletest runs a single agent against scripted traffic where each query
class has one profitable action. A converging policy picks the profitable
action increasingly often; the report shows the hit rate over the final
hundred rounds.
`
