package engine_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lessonpulse/notify/internal/clock"
	"github.com/lessonpulse/notify/internal/dispatch"
	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/engine"
	"github.com/lessonpulse/notify/internal/logging"
	"github.com/lessonpulse/notify/internal/prefs"
)

// pushRecorder captures provider calls so tests can count dispatches and
// inspect grouped counts. The engine loop runs on its own goroutine, so
// access is locked.
type pushRecorder struct {
	mu    sync.Mutex
	grant domain.PermissionState
	shows []pushShow
}

type pushShow struct {
	id      string
	grouped int
}

func (p *pushRecorder) RequestPermission(ctx context.Context) (domain.PermissionState, error) {
	return p.grant, nil
}

func (p *pushRecorder) Show(ctx context.Context, n *domain.Notification, grouped int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shows = append(p.shows, pushShow{id: n.ID, grouped: grouped})
	return nil
}

func (p *pushRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.shows)
}

func (p *pushRecorder) all() []pushShow {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushShow(nil), p.shows...)
}

type cueRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *cueRecorder) fire(n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, n.ID)
	return nil
}

func (r *cueRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

var _ = Describe("Engine", func() {
	var (
		eng   *engine.Engine
		clk   *clock.Fake
		push  *pushRecorder
		sound *cueRecorder
	)

	const groupingInterval = 2 * time.Second

	allWeekdays := []time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}

	spec := func(cat domain.Category, pri domain.Priority) domain.CreateSpec {
		return domain.CreateSpec{
			Category: cat,
			Priority: pri,
			Title:    "title",
			Body:     "body",
		}
	}

	BeforeEach(func() {
		clk = clock.NewFake(time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC))
		push = &pushRecorder{grant: domain.PermissionGranted}
		sound = &cueRecorder{}

		seeded := domain.DefaultPreferences()
		seeded.Push.Permission = domain.PermissionGranted

		var err error
		eng, err = engine.New(
			logging.Discard(),
			metricsForTest(),
			clk,
			prefs.NewMemoryStore(seeded),
			push,
			engine.Options{
				MaxVisibleAlerts: 3,
				ExitTransition:   0,
				GroupingInterval: groupingInterval,
			},
		)
		Expect(err).NotTo(HaveOccurred())

		Expect(eng.RegisterSink(dispatch.NewSoundSink(logging.Discard(), sound.fire))).To(Succeed())
		Expect(eng.Start(context.Background())).To(Succeed())
	})

	AfterEach(func() {
		eng.Stop()
	})

	Describe("create and delivery", func() {
		It("stores the notification and fires the open channels", func() {
			n, err := eng.CreateNotification(context.Background(), spec(domain.CategorySuccess, domain.PriorityLow))
			Expect(err).NotTo(HaveOccurred())
			Expect(n.ID).NotTo(BeEmpty())
			Expect(n.State).To(Equal(domain.StateUnread))

			Expect(push.count()).To(Equal(1))
			Expect(sound.count()).To(Equal(1))

			listed, err := eng.List(domain.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(1))
			Expect(listed[0].ID).To(Equal(n.ID))
			Expect(listed[0].Category).To(Equal(domain.CategorySuccess))
			Expect(listed[0].Title).To(Equal("title"))
		})

		It("rejects an unknown category", func() {
			_, err := eng.CreateNotification(context.Background(), spec(domain.Category("bogus"), domain.PriorityLow))
			Expect(err).To(MatchError(domain.ErrInvalidCategory))
		})

		It("keeps the record when the category is disabled but fires nothing", func() {
			current, err := eng.Preferences()
			Expect(err).NotTo(HaveOccurred())
			cp := current.PerCategory[domain.CategorySuccess]
			cp.Enabled = false

			_, err = eng.UpdatePreferences(prefs.Patch{
				PerCategory: map[domain.Category]domain.CategoryPrefs{domain.CategorySuccess: cp},
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = eng.CreateNotification(context.Background(), spec(domain.CategorySuccess, domain.PriorityLow))
			Expect(err).NotTo(HaveOccurred())

			Expect(push.count()).To(BeZero())
			Expect(sound.count()).To(BeZero())

			unread, err := eng.Unread()
			Expect(err).NotTo(HaveOccurred())
			Expect(unread).To(Equal(int64(1)))
		})
	})

	Describe("rate limiting", func() {
		It("admits up to the per-minute ceiling, batches the rest and keeps every record", func() {
			_, err := eng.UpdatePreferences(prefs.Patch{
				RateLimits: &domain.RateLimits{
					BatchingEnabled: true,
					MaxPerMinute:    5,
					MaxPerHour:      60,
					GroupSimilar:    true,
				},
			})
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 10; i++ {
				_, err := eng.CreateNotification(context.Background(), spec(domain.CategorySuccess, domain.PriorityLow))
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(push.count()).To(Equal(5))

			listed, err := eng.List(domain.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(10))

			// The five batched notifications flush as one grouped dispatch
			// once the grouping interval passes without a merge
			clk.Advance(groupingInterval)
			Eventually(push.count).Should(Equal(6))
			Expect(push.all()[5].grouped).To(Equal(5))
		})

		It("merges a pending batch into the next admitted dispatch", func() {
			_, err := eng.UpdatePreferences(prefs.Patch{
				RateLimits: &domain.RateLimits{
					BatchingEnabled: true,
					MaxPerMinute:    2,
					MaxPerHour:      60,
					GroupSimilar:    true,
				},
			})
			Expect(err).NotTo(HaveOccurred())

			// The first two admit, the third exceeds the ceiling and batches
			for i := 0; i < 3; i++ {
				_, err := eng.CreateNotification(context.Background(), spec(domain.CategorySuccess, domain.PriorityLow))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(push.count()).To(Equal(2))

			// Urgent bypasses the ceiling and absorbs the pending group
			_, err = eng.CreateNotification(context.Background(), spec(domain.CategorySuccess, domain.PriorityUrgent))
			Expect(err).NotTo(HaveOccurred())

			shows := push.all()
			Expect(shows).To(HaveLen(3))
			Expect(shows[2].grouped).To(Equal(2))

			// The flush timer was cancelled by the merge
			clk.Advance(groupingInterval)
			Consistently(push.count).Should(Equal(3))
		})

		It("suppresses an armed flush when quiet hours open before the interval", func() {
			_, err := eng.UpdatePreferences(prefs.Patch{
				RateLimits: &domain.RateLimits{
					BatchingEnabled: true,
					MaxPerMinute:    1,
					MaxPerHour:      60,
					GroupSimilar:    true,
				},
			})
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 2; i++ {
				_, err := eng.CreateNotification(context.Background(), spec(domain.CategorySuccess, domain.PriorityLow))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(push.count()).To(Equal(1))

			_, err = eng.UpdatePreferences(prefs.Patch{
				QuietHours: &domain.QuietHours{
					Enabled:  true,
					Start:    "11:00",
					End:      "13:00",
					Weekdays: allWeekdays,
				},
			})
			Expect(err).NotTo(HaveOccurred())

			clk.Advance(groupingInterval)
			Consistently(push.count).Should(Equal(1))

			// Records are untouched by the suppression
			listed, err := eng.List(domain.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(2))
		})

		It("flushes batched notifications individually when grouping is off", func() {
			_, err := eng.UpdatePreferences(prefs.Patch{
				RateLimits: &domain.RateLimits{
					BatchingEnabled: true,
					MaxPerMinute:    1,
					MaxPerHour:      60,
					GroupSimilar:    false,
				},
			})
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 3; i++ {
				_, err := eng.CreateNotification(context.Background(), spec(domain.CategorySuccess, domain.PriorityLow))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(push.count()).To(Equal(1))

			clk.Advance(groupingInterval)
			Eventually(push.count).Should(Equal(3))

			shows := push.all()
			Expect(shows[1].grouped).To(BeZero())
			Expect(shows[2].grouped).To(BeZero())
			Expect(shows[1].id).NotTo(Equal(shows[2].id))
		})
	})

	Describe("quiet hours", func() {
		BeforeEach(func() {
			_, err := eng.UpdatePreferences(prefs.Patch{
				QuietHours: &domain.QuietHours{
					Enabled:  true,
					Start:    "11:00",
					End:      "13:00",
					Weekdays: allWeekdays,
				},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("suppresses delivery inside the window but keeps the record", func() {
			_, err := eng.CreateNotification(context.Background(), spec(domain.CategoryInfo, domain.PriorityHigh))
			Expect(err).NotTo(HaveOccurred())

			Expect(push.count()).To(BeZero())

			listed, err := eng.List(domain.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(1))
		})

		It("lets urgent notifications through", func() {
			_, err := eng.CreateNotification(context.Background(), spec(domain.CategorySystem, domain.PriorityUrgent))
			Expect(err).NotTo(HaveOccurred())

			Expect(push.count()).To(Equal(1))
		})
	})

	Describe("lifecycle operations", func() {
		It("marks read and dismisses idempotently", func() {
			n, err := eng.CreateNotification(context.Background(), spec(domain.CategoryInfo, domain.PriorityNormal))
			Expect(err).NotTo(HaveOccurred())

			Expect(eng.MarkAsRead(n.ID)).To(Succeed())
			got, err := eng.Get(n.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal(domain.StateRead))

			Expect(eng.Dismiss(n.ID)).To(Succeed())
			Expect(eng.Dismiss(n.ID)).To(Succeed())
			got, err = eng.Get(n.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal(domain.StateDismissed))
		})

		It("returns clones that later transitions do not touch", func() {
			n, err := eng.CreateNotification(context.Background(), domain.CreateSpec{
				Category: domain.CategoryInfo,
				Priority: domain.PriorityNormal,
				Title:    "title",
				Body:     "body",
				Metadata: map[string]interface{}{"unit": "3"},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(eng.MarkAsRead(n.ID)).To(Succeed())
			Expect(eng.Dismiss(n.ID)).To(Succeed())

			// The caller's copy stays at its creation-time state
			Expect(n.State).To(Equal(domain.StateUnread))
			Expect(n.ReadAt).To(BeNil())
			Expect(n.DismissedAt).To(BeNil())

			got, err := eng.Get(n.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal(domain.StateDismissed))

			// And mutations of a returned copy never reach the store
			got.Metadata["unit"] = "changed"
			again, err := eng.Get(n.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Metadata).To(HaveKeyWithValue("unit", "3"))
		})

		It("lists clones detached from the stored records", func() {
			n, err := eng.CreateNotification(context.Background(), spec(domain.CategoryInfo, domain.PriorityNormal))
			Expect(err).NotTo(HaveOccurred())

			listed, err := eng.List(domain.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(1))
			listed[0].State = domain.StateDismissed

			got, err := eng.Get(n.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal(domain.StateUnread))
		})

		It("returns ErrNotFound for unknown ids", func() {
			Expect(eng.MarkAsRead("missing")).To(MatchError(domain.ErrNotFound))
			Expect(eng.Delete("missing")).To(MatchError(domain.ErrNotFound))
		})

		It("refuses calls after Stop", func() {
			eng.Stop()
			_, err := eng.CreateNotification(context.Background(), spec(domain.CategoryInfo, domain.PriorityNormal))
			Expect(err).To(MatchError(engine.ErrStopped))

			// AfterEach stops again; restart a throwaway engine to keep the
			// double-close out of the shared teardown
			var newErr error
			eng, newErr = engine.New(logging.Discard(), metricsForTest(), clk, prefs.NewMemoryStore(domain.DefaultPreferences()), push, engine.Options{})
			Expect(newErr).NotTo(HaveOccurred())
			Expect(eng.Start(context.Background())).To(Succeed())
		})
	})

	Describe("alerts", func() {
		It("shows an in-app alert per admitted notification and closes on dismissal", func() {
			n, err := eng.CreateNotification(context.Background(), spec(domain.CategoryInfo, domain.PriorityNormal))
			Expect(err).NotTo(HaveOccurred())

			views, err := eng.VisibleAlerts()
			Expect(err).NotTo(HaveOccurred())
			Expect(views).To(HaveLen(1))
			Expect(views[0].NotificationID).To(Equal(n.ID))

			Expect(eng.DismissAlert(n.ID)).To(Succeed())
			views, err = eng.VisibleAlerts()
			Expect(err).NotTo(HaveOccurred())
			Expect(views).To(BeEmpty())

			// Closing the alert leaves the record untouched
			got, err := eng.Get(n.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal(domain.StateUnread))
		})

		It("dismissing the notification also closes its alert", func() {
			n, err := eng.CreateNotification(context.Background(), spec(domain.CategoryInfo, domain.PriorityNormal))
			Expect(err).NotTo(HaveOccurred())

			Expect(eng.Dismiss(n.ID)).To(Succeed())
			views, err := eng.VisibleAlerts()
			Expect(err).NotTo(HaveOccurred())
			Expect(views).To(BeEmpty())
		})
	})

	Describe("event ingestion", func() {
		It("creates a notification from a known event", func() {
			eng.HandleEvent("xp_awarded", map[string]interface{}{"amount": float64(100)})

			Eventually(func() int {
				listed, err := eng.List(domain.Filter{})
				Expect(err).NotTo(HaveOccurred())
				return len(listed)
			}).Should(Equal(1))

			listed, err := eng.List(domain.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(listed[0].Category).To(Equal(domain.CategorySuccess))
			Expect(listed[0].Body).To(Equal("+100 XP"))
		})

		It("marks full screen presentations in metadata", func() {
			eng.HandleEvent("achievement_unlocked", map[string]interface{}{
				"name":   "Perfect Year",
				"rarity": "legendary",
			})

			Eventually(func() int {
				listed, err := eng.List(domain.Filter{})
				Expect(err).NotTo(HaveOccurred())
				return len(listed)
			}).Should(Equal(1))

			listed, err := eng.List(domain.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(listed[0].Metadata).To(HaveKeyWithValue(domain.MetaPresentation, "full_screen"))
		})

		It("skips unknown events without creating records", func() {
			eng.HandleEvent("not_a_thing", map[string]interface{}{})

			Consistently(func() int {
				listed, err := eng.List(domain.Filter{})
				Expect(err).NotTo(HaveOccurred())
				return len(listed)
			}).Should(BeZero())
		})
	})

	Describe("push permission", func() {
		It("records the provider's answer in the preference set", func() {
			push.grant = domain.PermissionDenied

			state, err := eng.RequestPushPermission(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(Equal(domain.PermissionDenied))

			current, err := eng.Preferences()
			Expect(err).NotTo(HaveOccurred())
			Expect(current.Push.Permission).To(Equal(domain.PermissionDenied))
		})
	})
})
