package model_test

import (
	"testing"

	model "github.com/okian/periodrank/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestPlayerRating(t *testing.T) {
	convey.Convey("Given a new player rating", t, func() {
		p := model.NewPlayerRating("alice", model.DefaultRating, model.DefaultDeviation, model.DefaultVolatility)

		convey.Convey("Then it should carry the defaults and no games", func() {
			convey.So(p.Name, convey.ShouldEqual, "alice")
			convey.So(p.Rating, convey.ShouldEqual, 1500.0)
			convey.So(p.Deviation, convey.ShouldEqual, 350.0)
			convey.So(p.Volatility, convey.ShouldEqual, 0.06)
			convey.So(p.GamesPlayed, convey.ShouldEqual, 0)
			convey.So(p.PointsScored, convey.ShouldEqual, 0.0)
		})

		convey.Convey("When applying two updates", func() {
			p = p.Apply(model.RatingUpdate{Name: "alice", Rating: 1600, Deviation: 300, Volatility: 0.059, GamesDelta: 2, PointsDelta: 1.5})
			p = p.Apply(model.RatingUpdate{Name: "alice", Rating: 1580, Deviation: 280, Volatility: 0.058, GamesDelta: 1, PointsDelta: 0})

			convey.Convey("Then ratings should be replaced and counters summed", func() {
				convey.So(p.Rating, convey.ShouldEqual, 1580.0)
				convey.So(p.Deviation, convey.ShouldEqual, 280.0)
				convey.So(p.Volatility, convey.ShouldEqual, 0.058)
				convey.So(p.GamesPlayed, convey.ShouldEqual, 3)
				convey.So(p.PointsScored, convey.ShouldEqual, 1.5)
			})
		})
	})
}

func TestApplyStatus(t *testing.T) {
	convey.Convey("Given apply statuses", t, func() {
		convey.So(model.Applied.String(), convey.ShouldEqual, "applied")
		convey.So(model.AlreadyApplied.String(), convey.ShouldEqual, "already_applied")
		convey.So(model.ApplyStatus(0).String(), convey.ShouldEqual, "unknown")
	})
}
