package lifecycle

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestObserve(t *testing.T) {
	Convey("Given a machine in ColdStart", t, func() {
		m := NewMachine("test-agent", nil)
		So(m.LoadKnowledge(), ShouldBeNil)

		for i := 0; i < 25; i++ {
			So(m.RecordInteraction(), ShouldBeNil)
		}

		Convey("The observation should carry cold-start progress", func() {
			obs := m.Observe()

			So(obs.State, ShouldEqual, StateColdStart)
			So(obs.InteractionCount, ShouldEqual, 25)
			So(obs.Metrics["cold_start_progress"], ShouldAlmostEqual, 0.25)
		})
	})
}

func TestOrient(t *testing.T) {
	Convey("Given a ready machine", t, func() {
		m := readyMachine(nil)

		Convey("Full health should read normal and stable", func() {
			orientation := m.Orient(m.Observe())

			So(orientation.Situation, ShouldEqual, SituationNormal)
			So(orientation.HealthTrend, ShouldEqual, TrendStable)
		})

		Convey("A health drop should read declining", func() {
			So(m.UpdateHealth(MustHealthScore(0.6)), ShouldBeNil)
			orientation := m.Orient(m.Observe())

			So(orientation.HealthTrend, ShouldEqual, TrendDeclining)
		})

		Convey("Low health in Ready should read warning then critical", func() {
			// Stay above the degrade guard so the state remains Ready.
			So(m.UpdateHealth(MustHealthScore(0.55)), ShouldBeNil)
			obs := m.Observe()
			obs.Health = 0.45
			So(m.Orient(obs).Situation, ShouldEqual, SituationWarning)

			obs.Health = 0.25
			So(m.Orient(obs).Situation, ShouldEqual, SituationCritical)
		})

		Convey("A failure streak alone should read warning", func() {
			m.RecordFailure()
			orientation := m.Orient(m.Observe())

			So(orientation.Situation, ShouldEqual, SituationWarning)
		})

		Convey("A degraded machine should read degraded", func() {
			So(m.UpdateHealth(MustHealthScore(0.4)), ShouldBeNil)
			orientation := m.Orient(m.Observe())

			So(orientation.Situation, ShouldEqual, SituationDegraded)
		})
	})
}

func TestDecide(t *testing.T) {
	Convey("Given machines in each state", t, func() {
		Convey("ColdStart should explore with progress-scaled confidence", func() {
			m := NewMachine("test-agent", nil)
			So(m.LoadKnowledge(), ShouldBeNil)
			for i := 0; i < 50; i++ {
				So(m.RecordInteraction(), ShouldBeNil)
			}

			obs := m.Observe()
			decision := m.Decide(obs, m.Orient(obs))

			So(decision.Action, ShouldEqual, "explore")
			So(decision.Confidence, ShouldAlmostEqual, 0.75)
		})

		Convey("Ready with stable health should exploit", func() {
			m := readyMachine(nil)
			obs := m.Observe()
			decision := m.Decide(obs, m.Orient(obs))

			So(decision.Action, ShouldEqual, "exploit")
		})

		Convey("Ready with declining health should widen exploration", func() {
			m := readyMachine(nil)
			So(m.UpdateHealth(MustHealthScore(0.6)), ShouldBeNil)

			obs := m.Observe()
			decision := m.Decide(obs, m.Orient(obs))

			So(decision.Action, ShouldEqual, "increase_exploration")
		})

		Convey("Busy should continue the query", func() {
			m := readyMachine(nil)
			So(m.BeginQuery(), ShouldBeNil)

			obs := m.Observe()
			decision := m.Decide(obs, m.Orient(obs))

			So(decision.Action, ShouldEqual, "continue_query")
		})

		Convey("Degraded should execute its recovery plan", func() {
			m := readyMachine(nil)
			So(m.UpdateHealth(MustHealthScore(0.4)), ShouldBeNil)

			obs := m.Observe()
			decision := m.Decide(obs, m.Orient(obs))

			So(decision.Action, ShouldEqual, "execute_recovery_plan")
		})
	})
}

func TestCycleRaisesDecisionEvent(t *testing.T) {
	Convey("Given a ready machine with a bus", t, func() {
		bus := NewMemoryBus()
		events := bus.Subscribe()
		m := readyMachine(bus)

		// Drain lifecycle events from the warm-up.
		for len(events) > 0 {
			<-events
		}

		Convey("When running one OODA cycle", func() {
			_, _, decision := m.Cycle()

			Convey("An AutonomousDecisionMade event should be published", func() {
				So(decision.Action, ShouldEqual, "exploit")

				event := <-events
				So(event.Type, ShouldEqual, EventAutonomousDecisionMade)
				So(event.Payload["action"], ShouldEqual, "exploit")
			})
		})
	})
}
