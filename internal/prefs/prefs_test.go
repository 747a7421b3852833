package prefs_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lessonpulse/notify/internal/clock"
	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/logging"
	"github.com/lessonpulse/notify/internal/prefs"
)

type fakeProvider struct {
	state domain.PermissionState
	err   error
	calls int
}

func (f *fakeProvider) RequestPermission(ctx context.Context) (domain.PermissionState, error) {
	f.calls++
	return f.state, f.err
}

func (f *fakeProvider) Show(ctx context.Context, n *domain.Notification, grouped int) error {
	return nil
}

var _ = Describe("Preference Engine", func() {
	var (
		engine   *prefs.Engine
		storage  *prefs.MemoryStore
		provider *fakeProvider
		clk      *clock.Fake
	)

	// Tuesday noon
	tuesdayNoon := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		clk = clock.NewFake(tuesdayNoon)
		storage = prefs.NewMemoryStore(domain.DefaultPreferences())
		provider = &fakeProvider{state: domain.PermissionGranted}
		engine = prefs.New(logging.Discard(), clk, storage, provider)
	})

	Describe("ShouldDeliver", func() {
		It("opens all non-push channels by default", func() {
			Expect(engine.ShouldDeliver(domain.CategorySuccess, domain.ChannelInAppAlert)).To(BeTrue())
			Expect(engine.ShouldDeliver(domain.CategorySuccess, domain.ChannelSound)).To(BeTrue())
			Expect(engine.ShouldDeliver(domain.CategorySuccess, domain.ChannelVibration)).To(BeTrue())
		})

		It("closes push until permission is granted", func() {
			Expect(engine.ShouldDeliver(domain.CategorySuccess, domain.ChannelPush)).To(BeFalse())

			_, err := engine.RequestPushPermission(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.ShouldDeliver(domain.CategorySuccess, domain.ChannelPush)).To(BeTrue())
		})

		It("closes everything when the global switch is off", func() {
			next := engine.Current()
			next.Enabled = false
			Expect(engine.Update(next)).To(Succeed())

			for _, ch := range domain.Channels() {
				Expect(engine.ShouldDeliver(domain.CategorySuccess, ch)).To(BeFalse())
			}
		})

		It("closes a disabled category on every channel regardless of others", func() {
			next := engine.Current()
			cp := next.PerCategory[domain.CategoryProgress]
			cp.Enabled = false
			next.PerCategory[domain.CategoryProgress] = cp
			Expect(engine.Update(next)).To(Succeed())

			for _, ch := range domain.Channels() {
				Expect(engine.ShouldDeliver(domain.CategoryProgress, ch)).To(BeFalse())
			}
			Expect(engine.ShouldDeliver(domain.CategorySuccess, domain.ChannelSound)).To(BeTrue())
		})

		It("closes a single toggled-off channel", func() {
			next := engine.Current()
			cp := next.PerCategory[domain.CategorySuccess]
			cp.Sound = false
			next.PerCategory[domain.CategorySuccess] = cp
			Expect(engine.Update(next)).To(Succeed())

			Expect(engine.ShouldDeliver(domain.CategorySuccess, domain.ChannelSound)).To(BeFalse())
			Expect(engine.ShouldDeliver(domain.CategorySuccess, domain.ChannelInAppAlert)).To(BeTrue())
		})

		It("rejects unknown categories", func() {
			Expect(engine.ShouldDeliver("marketing", domain.ChannelSound)).To(BeFalse())
			Expect(engine.KnownCategory("marketing")).To(BeFalse())
			Expect(engine.KnownCategory(domain.CategorySystem)).To(BeTrue())
		})
	})

	Describe("QuietNow", func() {
		weekdayQuietHours := domain.QuietHours{
			Enabled:  true,
			Start:    "22:00",
			End:      "07:00",
			Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		}

		BeforeEach(func() {
			next := engine.Current()
			next.QuietHours = weekdayQuietHours
			Expect(engine.Update(next)).To(Succeed())
		})

		It("suppresses normal priority inside the window", func() {
			clk.Advance(11 * time.Hour) // Tuesday 23:00
			Expect(engine.QuietNow(domain.PriorityNormal)).To(BeTrue())
		})

		It("does not suppress outside the window", func() {
			// Tuesday noon
			Expect(engine.QuietNow(domain.PriorityNormal)).To(BeFalse())
		})

		It("never suppresses urgent priority", func() {
			clk.Advance(11 * time.Hour)
			Expect(engine.QuietNow(domain.PriorityUrgent)).To(BeFalse())
		})

		It("wraps past midnight", func() {
			clk.Advance(14 * time.Hour) // Wednesday 02:00
			Expect(engine.QuietNow(domain.PriorityNormal)).To(BeTrue())
		})

		It("respects the weekday set", func() {
			clk.Advance(4*24*time.Hour + 11*time.Hour) // Saturday 23:00
			Expect(engine.QuietNow(domain.PriorityNormal)).To(BeFalse())
		})

		It("stays inactive when disabled", func() {
			next := engine.Current()
			next.QuietHours.Enabled = false
			Expect(engine.Update(next)).To(Succeed())

			clk.Advance(11 * time.Hour)
			Expect(engine.QuietNow(domain.PriorityNormal)).To(BeFalse())
		})
	})

	Describe("Apply", func() {
		It("merges a partial update, leaving unnamed fields intact", func() {
			disabled := false
			err := engine.Apply(prefs.Patch{Enabled: &disabled})
			Expect(err).NotTo(HaveOccurred())

			current := engine.Current()
			Expect(current.Enabled).To(BeFalse())
			Expect(current.RateLimits).To(Equal(domain.DefaultPreferences().RateLimits))
			Expect(current.PerCategory[domain.CategorySuccess].Sound).To(BeTrue())
		})

		It("rejects patches naming unknown categories", func() {
			err := engine.Apply(prefs.Patch{
				PerCategory: map[domain.Category]domain.CategoryPrefs{
					"marketing": {Enabled: true},
				},
			})
			Expect(err).To(MatchError(domain.ErrInvalidCategory))
		})

		It("persists through storage after every update", func() {
			limits := domain.RateLimits{BatchingEnabled: false, MaxPerMinute: 1, MaxPerHour: 2}
			Expect(engine.Apply(prefs.Patch{RateLimits: &limits})).To(Succeed())

			saved, err := storage.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.RateLimits).To(Equal(limits))
		})
	})

	Describe("RequestPushPermission", func() {
		It("records the granted state", func() {
			state, err := engine.RequestPushPermission(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(Equal(domain.PermissionGranted))
			Expect(engine.Current().Push.Permission).To(Equal(domain.PermissionGranted))
		})

		It("records denied without retrying", func() {
			provider.state = domain.PermissionDenied

			state, err := engine.RequestPushPermission(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(Equal(domain.PermissionDenied))
			Expect(provider.calls).To(Equal(1))
		})

		It("keeps the previous state on provider failure", func() {
			provider.err = fmt.Errorf("platform unavailable")

			_, err := engine.RequestPushPermission(context.Background())
			Expect(err).To(HaveOccurred())
			Expect(engine.Current().Push.Permission).To(Equal(domain.PermissionDefault))
		})
	})

	Describe("subscriptions", func() {
		It("notifies after every atomic replace", func() {
			var seen []bool
			engine.Subscribe(func(p domain.Preferences) {
				seen = append(seen, p.Enabled)
			})

			next := engine.Current()
			next.Enabled = false
			Expect(engine.Update(next)).To(Succeed())

			Expect(seen).To(Equal([]bool{false}))
		})
	})
})
