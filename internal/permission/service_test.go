package permission_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/frahmantamala/assistant-guard/internal/core/events"
	"github.com/frahmantamala/assistant-guard/internal/permission"
	"github.com/frahmantamala/assistant-guard/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var errNoSuchUser = errors.New("no such user")

type fakeDirectory struct {
	mu         sync.Mutex
	roles      map[string]permission.Role
	activities []string
	lookups    int
	failLookup bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{roles: map[string]permission.Role{
		"u-guest": permission.RoleGuest,
		"u-user":  permission.RoleUser,
		"u-dev":   permission.RoleDeveloper,
		"u-admin": permission.RoleAdmin,
		"u-root":  permission.RoleSuperAdmin,
	}}
}

func (f *fakeDirectory) RoleOf(_ context.Context, id string) (permission.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.failLookup {
		return "", errors.New("directory unavailable")
	}
	role, ok := f.roles[id]
	if !ok {
		return "", errNoSuchUser
	}
	return role, nil
}

func (f *fakeDirectory) SetRole(_ context.Context, id string, role permission.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[id]; !ok {
		return errNoSuchUser
	}
	f.roles[id] = role
	return nil
}

func (f *fakeDirectory) RoleDistribution(context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, r := range f.roles {
		out[r.String()]++
	}
	return out, nil
}

func (f *fakeDirectory) LogActivity(_ context.Context, _ string, action string, _ map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, action)
}

// pausingDirectory reads the role, then holds the first lookup for target
// until release is closed.
type pausingDirectory struct {
	*fakeDirectory
	target  string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *pausingDirectory) RoleOf(ctx context.Context, id string) (permission.Role, error) {
	role, err := p.fakeDirectory.RoleOf(ctx, id)
	if id == p.target {
		p.once.Do(func() {
			close(p.entered)
			<-p.release
		})
	}
	return role, err
}

var _ = Describe("Service", func() {
	var (
		dir     *fakeDirectory
		service *permission.Service
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = newFakeDirectory()
		service = permission.NewService(dir, permission.NewMemoryOverrides(), 16, time.Hour, logger.Discard())
	})

	Describe("Resolve", func() {
		It("should resolve unknown identities to guest", func() {
			up := service.Resolve(ctx, "nobody")
			Expect(up.Role).To(Equal(permission.RoleGuest))
			Expect(up.Effective.Strings()).To(Equal([]string{"chat"}))
		})

		It("should resolve the empty identity to guest without a lookup", func() {
			up := service.Resolve(ctx, "")
			Expect(up.Role).To(Equal(permission.RoleGuest))
			Expect(dir.lookups).To(BeZero())
		})

		It("should give admin a superset of user", func() {
			admin := service.Resolve(ctx, "u-admin")
			user := service.Resolve(ctx, "u-user")
			Expect(admin.Effective.IsSuperset(user.Effective)).To(BeTrue())
		})

		It("should serve repeated lookups from the cache", func() {
			service.Resolve(ctx, "u-user")
			service.Resolve(ctx, "u-user")
			Expect(dir.lookups).To(Equal(1))
		})

		It("should not let callers mutate the cached set", func() {
			up := service.Resolve(ctx, "u-user")
			up.Effective[permission.FullAccess] = struct{}{}
			Expect(service.HasPermission(ctx, "u-user", permission.FullAccess)).To(BeFalse())
		})

		It("should expire cache entries after the TTL", func() {
			short := permission.NewService(dir, permission.NewMemoryOverrides(), 16, 50*time.Millisecond, logger.Discard())
			short.Resolve(ctx, "u-user")
			Eventually(func() int {
				short.Resolve(ctx, "u-user")
				return dir.lookups
			}, time.Second, 20*time.Millisecond).Should(BeNumerically(">=", 2))
		})
	})

	Describe("HasAny and HasAll", func() {
		It("should use set membership", func() {
			Expect(service.HasAny(ctx, "u-user", permission.AdminPanel, permission.Chat)).To(BeTrue())
			Expect(service.HasAll(ctx, "u-user", permission.AdminPanel, permission.Chat)).To(BeFalse())
			Expect(service.HasAll(ctx, "u-admin", permission.AdminPanel, permission.Chat)).To(BeTrue())
		})
	})

	Describe("Grant", func() {
		It("should be a no-op when the granter lacks role_management", func() {
			// Given
			before := service.HasPermission(ctx, "u-user", permission.SystemAccess)

			// When
			ok, err := service.Grant(ctx, "u-user", permission.SystemAccess, "u-admin")

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(service.HasPermission(ctx, "u-user", permission.SystemAccess)).To(Equal(before))
			Expect(dir.activities).To(BeEmpty())
		})

		It("should add the permission and invalidate the cache", func() {
			Expect(service.HasPermission(ctx, "u-user", permission.SystemAccess)).To(BeFalse())

			ok, err := service.Grant(ctx, "u-user", permission.SystemAccess, "u-root")

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(service.HasPermission(ctx, "u-user", permission.SystemAccess)).To(BeTrue())
			Expect(dir.activities).To(ContainElement("permission_granted"))
		})

		It("should fail for unknown targets", func() {
			_, err := service.Grant(ctx, "ghost", permission.Chat, "u-root")
			Expect(err).To(MatchError(errNoSuchUser))
		})
	})

	Describe("Revoke", func() {
		It("should remove a base permission through a restriction", func() {
			ok, err := service.Revoke(ctx, "u-user", permission.Chat, "u-root")

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			up := service.Resolve(ctx, "u-user")
			Expect(up.Has(permission.Chat)).To(BeFalse())
			Expect(up.Restrictions.Has(permission.Chat)).To(BeTrue())
		})

		It("should let a later grant lift the restriction", func() {
			_, _ = service.Revoke(ctx, "u-user", permission.Chat, "u-root")
			_, _ = service.Grant(ctx, "u-user", permission.Chat, "u-root")
			Expect(service.HasPermission(ctx, "u-user", permission.Chat)).To(BeTrue())
		})
	})

	Describe("ChangeRole", func() {
		It("should require role_management", func() {
			ok, err := service.ChangeRole(ctx, "u-user", permission.RoleAdmin, "u-dev")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(service.Resolve(ctx, "u-user").Role).To(Equal(permission.RoleUser))
		})

		It("should change the role and drop the cached entry", func() {
			Expect(service.HasPermission(ctx, "u-user", permission.AdminPanel)).To(BeFalse())

			ok, err := service.ChangeRole(ctx, "u-user", permission.RoleAdmin, "u-root")

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(service.HasPermission(ctx, "u-user", permission.AdminPanel)).To(BeTrue())
			Expect(dir.activities).To(ContainElement("role_changed"))
		})
	})

	Describe("CanAccessCategory", func() {
		It("should deny unknown categories", func() {
			Expect(service.CanAccessCategory(ctx, "u-root", permission.Category("mystery"))).To(BeFalse())
		})

		It("should check the mapped permission", func() {
			Expect(service.CanAccessCategory(ctx, "u-user", permission.CategoryTool)).To(BeTrue())
			Expect(service.CanAccessCategory(ctx, "u-user", permission.CategorySystem)).To(BeFalse())
			Expect(service.CanAccessCategory(ctx, "u-admin", permission.CategorySystem)).To(BeTrue())
		})
	})

	Describe("IsAdmin", func() {
		It("should report lookup failures", func() {
			dir.failLookup = true
			_, err := service.IsAdmin(ctx, "u-admin")
			Expect(err).To(HaveOccurred())
		})

		It("should recognise administrative roles", func() {
			Expect(service.IsAdmin(ctx, "u-admin")).To(BeTrue())
			Expect(service.IsAdmin(ctx, "u-dev")).To(BeFalse())
		})
	})

	Describe("event handlers", func() {
		It("should invalidate on role change events", func() {
			bus := events.NewEventBus(logger.Discard())
			bus.Subscribe(events.EventTypeUserRoleChanged, service.HandleRoleChanged)
			service.Resolve(ctx, "u-user")

			dir.roles["u-user"] = permission.RoleDeveloper
			Expect(bus.PublishSync(ctx, events.NewUserRoleChangedEvent("u-user", "user", "developer"))).To(Succeed())

			Expect(service.Resolve(ctx, "u-user").Role).To(Equal(permission.RoleDeveloper))
		})

		It("should clear overrides on delete events", func() {
			_, _ = service.Grant(ctx, "u-user", permission.SystemAccess, "u-root")
			Expect(service.HandleUserDeleted(ctx, events.NewUserDeletedEvent("u-user"))).To(Succeed())
			Expect(service.HasPermission(ctx, "u-user", permission.SystemAccess)).To(BeFalse())
		})
	})

	Describe("Summary and Stats", func() {
		It("should summarise a developer", func() {
			s := service.Summary(ctx, "u-dev")
			Expect(s.Role.Name).To(Equal("developer"))
			Expect(s.AccessibleTools).To(ContainElement("command_executor"))
			Expect(s.IsAdmin).To(BeFalse())
		})

		It("should count cached users and roles", func() {
			service.Resolve(ctx, "u-user")
			service.Resolve(ctx, "u-dev")
			stats := service.Stats(ctx)
			Expect(stats.CachedUsers).To(Equal(2))
			Expect(stats.TotalRoles).To(Equal(5))
			Expect(stats.RoleDistribution).To(HaveKeyWithValue("admin", 1))

			service.ClearCache("")
			Expect(service.Stats(ctx).CachedUsers).To(BeZero())
		})
	})

	Describe("invalidation during a cache fill", func() {
		var (
			dir     *pausingDirectory
			service *permission.Service
			done    chan *permission.UserPermissions
		)

		BeforeEach(func() {
			dir = &pausingDirectory{
				fakeDirectory: newFakeDirectory(),
				target:        "u-admin",
				entered:       make(chan struct{}),
				release:       make(chan struct{}),
			}
			service = permission.NewService(dir, permission.NewMemoryOverrides(), 16, time.Hour, logger.Discard())
			service.Resolve(ctx, "u-root")

			// Given a lookup for u-admin that has read its role and is still in flight
			done = make(chan *permission.UserPermissions, 1)
			go func() { done <- service.Resolve(ctx, "u-admin") }()
			Eventually(dir.entered).Should(BeClosed())
		})

		It("should not cache the old role after a role change", func() {
			// When the role changes before the lookup finishes
			ok, err := service.ChangeRole(ctx, "u-admin", permission.RoleGuest, "u-root")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			close(dir.release)
			Eventually(done).Should(Receive())

			// Then the next resolve sees the new role
			Expect(service.Resolve(ctx, "u-admin").Role).To(Equal(permission.RoleGuest))
			Expect(service.HasPermission(ctx, "u-admin", permission.AdminPanel)).To(BeFalse())
		})

		It("should not cache the old role after a full purge", func() {
			Expect(dir.SetRole(ctx, "u-admin", permission.RoleUser)).To(Succeed())
			service.ClearCache("")
			close(dir.release)
			Eventually(done).Should(Receive())

			Expect(service.Resolve(ctx, "u-admin").Role).To(Equal(permission.RoleUser))
		})
	})
})
