package identity_test

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/core/events"
	"github.com/frahmantamala/assistant-guard/internal/credential"
	"github.com/frahmantamala/assistant-guard/internal/identity"
	"github.com/frahmantamala/assistant-guard/internal/permission"
	"github.com/frahmantamala/assistant-guard/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

// roleGate grants role_management to the listed actors.
type roleGate map[string]bool

func (g roleGate) HasPermission(_ context.Context, userID string, p permission.Permission) bool {
	return p == permission.RoleManagement && g[userID]
}

func newUser(username, role string) identity.CreateUserDTO {
	return identity.CreateUserDTO{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct-horse-battery",
		Role:     role,
	}
}

var _ = Describe("Identity Service", func() {
	var (
		ctx     context.Context
		store   *identity.MemoryStore
		tokens  *credential.TokenService
		bus     *events.EventBus
		seen    *recorder
		service *identity.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = identity.NewMemoryStore()
		tokens = credential.NewTokenService("test-secret", time.Hour, credential.NewMemoryBlacklist(), logger.Discard())
		bus = events.NewEventBus(logger.Discard())
		seen = &recorder{}
		bus.Subscribe(events.EventTypeUserRoleChanged, seen.handle)
		bus.Subscribe(events.EventTypeUserDeleted, seen.handle)
		service = identity.NewService(store, credential.NewHasher(bcrypt.MinCost), tokens, bus, logger.Discard())
	})

	Describe("CreateUser", func() {
		It("defaults to the user role and hides the hash", func() {
			user, err := service.CreateUser(ctx, newUser("alice", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Role).To(Equal("user"))
			Expect(user.Status).To(Equal("active"))
			Expect(user.Preferences).To(HaveKeyWithValue("theme", "dark"))

			stored, err := store.Get(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.PasswordHash).NotTo(Equal("correct-horse-battery"))
		})

		It("maps the agent alias to developer", func() {
			user, err := service.CreateUser(ctx, newUser("builder", "agent"))
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Role).To(Equal("developer"))
		})

		It("rejects an unknown role", func() {
			_, err := service.CreateUser(ctx, newUser("mallory", "root"))
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeValidationFailed))
		})

		It("rejects duplicate usernames and emails", func() {
			_, err := service.CreateUser(ctx, newUser("alice", ""))
			Expect(err).NotTo(HaveOccurred())

			_, err = service.CreateUser(ctx, newUser("alice", ""))
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeDuplicateIdentity))

			dto := newUser("alice2", "")
			dto.Email = "ALICE@example.com"
			_, err = service.CreateUser(ctx, dto)
			appErr, ok = internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeDuplicateIdentity))
		})

		It("records a user_created activity", func() {
			user, err := service.CreateUser(ctx, newUser("alice", ""))
			Expect(err).NotTo(HaveOccurred())
			activity, err := service.GetActivity(ctx, user.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(activity).To(HaveLen(1))
			Expect(activity[0].Action).To(Equal("user_created"))
		})
	})

	Describe("Authenticate", func() {
		BeforeEach(func() {
			_, err := service.CreateUser(ctx, newUser("alice", ""))
			Expect(err).NotTo(HaveOccurred())
		})

		It("issues a verifiable token by username or email", func() {
			resp, err := service.Authenticate(ctx, identity.LoginDTO{Identifier: "alice", Password: "correct-horse-battery"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.TokenType).To(Equal("Bearer"))
			Expect(resp.User.LoginCount).To(Equal(1))
			Expect(resp.User.LastLogin).NotTo(BeNil())

			claims, err := tokens.Verify(ctx, resp.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.UserID).To(Equal(resp.User.ID))
			Expect(claims.Role).To(Equal("user"))

			resp, err = service.Authenticate(ctx, identity.LoginDTO{Identifier: "alice@example.com", Password: "correct-horse-battery"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.User.LoginCount).To(Equal(2))
		})

		DescribeTable("returns the same error for every credential failure",
			func(identifier, password string) {
				_, err := service.Authenticate(ctx, identity.LoginDTO{Identifier: identifier, Password: password})
				Expect(err).To(Equal(internal.ErrInvalidCredentials))
			},
			Entry("wrong password", "alice", "nope-nope-nope"),
			Entry("unknown user", "bob", "correct-horse-battery"),
			Entry("empty password", "alice", ""),
		)

		It("refuses suspended users", func() {
			users, _ := service.ListUsers(ctx, true)
			status := "suspended"
			_, err := service.UpdateUser(ctx, users[0].ID, identity.UpdateUserDTO{Status: &status}, "admin")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Authenticate(ctx, identity.LoginDTO{Identifier: "alice", Password: "correct-horse-battery"})
			Expect(err).To(Equal(internal.ErrInvalidCredentials))
		})

		It("revokes the token on logout", func() {
			resp, err := service.Authenticate(ctx, identity.LoginDTO{Identifier: "alice", Password: "correct-horse-battery"})
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Logout(ctx, resp.User.ID, resp.Token)).To(BeTrue())
			_, err = tokens.Verify(ctx, resp.Token)
			Expect(err).To(MatchError(credential.ErrTokenRevoked))
		})
	})

	Describe("UpdateUser", func() {
		var id string

		BeforeEach(func() {
			user, err := service.CreateUser(ctx, newUser("alice", ""))
			Expect(err).NotTo(HaveOccurred())
			id = user.ID
		})

		It("changes the role and publishes the change synchronously", func() {
			service.WithRoleAuthorizer(roleGate{"admin-1": true})
			role := "developer"
			user, err := service.UpdateUser(ctx, id, identity.UpdateUserDTO{Role: &role}, "admin-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Role).To(Equal("developer"))
			Expect(seen.types()).To(ConsistOf(events.EventTypeUserRoleChanged))

			activity, _ := service.GetActivity(ctx, id, 1)
			Expect(activity[0].Action).To(Equal("role_change"))
			Expect(activity[0].Details).To(HaveKeyWithValue("changed_by", "admin-1"))
		})

		It("ignores an invalid role", func() {
			role := "overlord"
			user, err := service.UpdateUser(ctx, id, identity.UpdateUserDTO{Role: &role}, "admin-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Role).To(Equal("user"))
			Expect(seen.types()).To(BeEmpty())
		})

		It("refuses a role change from an actor without role_management", func() {
			// Given an actor the authorizer does not trust
			service.WithRoleAuthorizer(roleGate{"root": true})
			role := "super_admin"

			// When they patch the role
			_, err := service.UpdateUser(ctx, id, identity.UpdateUserDTO{Role: &role}, id)

			// Then the patch is refused and nothing changes
			Expect(err).To(Equal(internal.ErrRoleChangeDenied))
			user, _ := service.GetUser(ctx, id)
			Expect(user.Role).To(Equal("user"))
			Expect(seen.types()).To(BeEmpty())
		})

		It("refuses role changes when no authorizer is configured", func() {
			role := "admin"
			_, err := service.UpdateUser(ctx, id, identity.UpdateUserDTO{Role: &role}, "admin-1")
			Expect(err).To(Equal(internal.ErrRoleChangeDenied))
		})

		It("accepts a patch that repeats the current role", func() {
			role := "user"
			_, err := service.UpdateUser(ctx, id, identity.UpdateUserDTO{Role: &role}, id)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects an invalid status", func() {
			status := "sleeping"
			_, err := service.UpdateUser(ctx, id, identity.UpdateUserDTO{Status: &status}, "admin-1")
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(400))
		})

		It("merges preferences", func() {
			user, err := service.UpdateUser(ctx, id, identity.UpdateUserDTO{
				Preferences: map[string]interface{}{"theme": "light"},
			}, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Preferences).To(HaveKeyWithValue("theme", "light"))
			Expect(user.Preferences).To(HaveKeyWithValue("language", "en"))
		})

		It("returns not found for unknown users", func() {
			email := "x@example.com"
			_, err := service.UpdateUser(ctx, "missing", identity.UpdateUserDTO{Email: &email}, "admin")
			Expect(err).To(Equal(internal.ErrUserNotFound))
		})
	})

	Describe("RegisterUser", func() {
		It("needs role_management for roles above user", func() {
			_, err := service.RegisterUser(ctx, newUser("eve", "admin"), "someone")
			Expect(err).To(Equal(internal.ErrRoleChangeDenied))

			service.WithRoleAuthorizer(roleGate{"root": true})
			user, err := service.RegisterUser(ctx, newUser("eve", "admin"), "root")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Role).To(Equal("admin"))
		})

		It("allows default and lower roles for any actor", func() {
			_, err := service.RegisterUser(ctx, newUser("gus", "guest"), "someone")
			Expect(err).NotTo(HaveOccurred())
			_, err = service.RegisterUser(ctx, newUser("una", ""), "someone")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("last administrator", func() {
		var adminID string

		BeforeEach(func() {
			service.WithRoleAuthorizer(roleGate{"root": true})
			admin, err := service.CreateUser(ctx, newUser("carol", "admin"))
			Expect(err).NotTo(HaveOccurred())
			adminID = admin.ID
		})

		It("refuses to disable, demote or delete the only active admin", func() {
			disabled := "disabled"
			_, err := service.UpdateUser(ctx, adminID, identity.UpdateUserDTO{Status: &disabled}, "root")
			Expect(err).To(Equal(internal.ErrLastAdmin))

			guest := "guest"
			_, err = service.UpdateUser(ctx, adminID, identity.UpdateUserDTO{Role: &guest}, "root")
			Expect(err).To(Equal(internal.ErrLastAdmin))

			Expect(service.SetRole(ctx, adminID, permission.RoleUser)).To(MatchError(internal.ErrLastAdmin))

			deleted, err := service.DeleteUser(ctx, adminID, "root")
			Expect(err).To(Equal(internal.ErrLastAdmin))
			Expect(deleted).To(BeFalse())

			user, err := service.GetUser(ctx, adminID)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Role).To(Equal("admin"))
			Expect(user.Status).To(Equal("active"))
		})

		It("allows it once another active admin exists", func() {
			_, err := service.CreateUser(ctx, newUser("dave", "super_admin"))
			Expect(err).NotTo(HaveOccurred())

			disabled := "disabled"
			_, err = service.UpdateUser(ctx, adminID, identity.UpdateUserDTO{Status: &disabled}, "root")
			Expect(err).NotTo(HaveOccurred())

			deleted, err := service.DeleteUser(ctx, adminID, "root")
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeTrue())
		})
	})

	Describe("DeleteUser", func() {
		It("removes the user with its activity and publishes an event", func() {
			user, err := service.CreateUser(ctx, newUser("alice", ""))
			Expect(err).NotTo(HaveOccurred())

			deleted, err := service.DeleteUser(ctx, user.ID, "admin")
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeTrue())
			Expect(seen.types()).To(ConsistOf(events.EventTypeUserDeleted))

			_, err = service.GetUser(ctx, user.ID)
			Expect(err).To(Equal(internal.ErrUserNotFound))
			activity, _ := service.GetActivity(ctx, user.ID, 0)
			Expect(activity).To(BeEmpty())
		})

		It("reports false for unknown users", func() {
			deleted, err := service.DeleteUser(ctx, "missing", "admin")
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeFalse())
		})
	})

	Describe("activity retention", func() {
		It("keeps only the newest entries", func() {
			service.WithActivityLimit(3)
			for i := 0; i < 5; i++ {
				service.LogActivity(ctx, "u1", "ping", map[string]interface{}{"n": i})
			}
			activity, err := service.GetActivity(ctx, "u1", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(activity).To(HaveLen(3))
			Expect(activity[0].Details).To(HaveKeyWithValue("n", 4))
		})

		It("cleans up old records", func() {
			Expect(store.AppendActivity(ctx, identity.Activity{UserID: "u1", Action: "old", Timestamp: time.Now().Add(-48 * time.Hour)})).To(Succeed())
			service.LogActivity(ctx, "u1", "new", nil)

			removed, err := service.CleanupActivity(ctx, 24*time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(1))
		})
	})

	Describe("listing and stats", func() {
		It("orders by last login and filters inactive users", func() {
			_, _ = service.CreateUser(ctx, newUser("alice", ""))
			_, _ = service.CreateUser(ctx, newUser("bob", "guest"))
			_, _ = service.CreateUser(ctx, newUser("carol", "admin"))
			_, err := service.Authenticate(ctx, identity.LoginDTO{Identifier: "bob", Password: "correct-horse-battery"})
			Expect(err).NotTo(HaveOccurred())

			users, err := service.ListUsers(ctx, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(3))
			Expect(users[0].Username).To(Equal("bob"))

			status := "disabled"
			_, err = service.UpdateUser(ctx, mustFind(ctx, store, "alice").ID, identity.UpdateUserDTO{Status: &status}, "admin")
			Expect(err).NotTo(HaveOccurred())
			active, _ := service.ListUsers(ctx, false)
			Expect(active).To(HaveLen(2))

			stats, err := service.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalUsers).To(Equal(3))
			Expect(stats.ActiveUsers).To(Equal(2))
			Expect(stats.RoleDistribution).To(Equal(map[string]int{"user": 1, "guest": 1, "admin": 1}))
			Expect(stats.RecentActivity24h).To(BeNumerically(">", 0))
		})

		It("exports a user with full activity", func() {
			user, _ := service.CreateUser(ctx, newUser("alice", ""))
			service.LogActivity(ctx, user.ID, "chat", nil)

			export, err := service.ExportUser(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(export.User.Username).To(Equal("alice"))
			Expect(export.Activity).To(HaveLen(2))
		})
	})

	Describe("EnsureAdmin", func() {
		It("creates a super admin once", func() {
			created, err := service.EnsureAdmin(ctx, "admin", "admin@example.com", "change-me-now")
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())

			created, err = service.EnsureAdmin(ctx, "admin", "admin@example.com", "change-me-now")
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())

			role, err := service.RoleOf(ctx, mustFind(ctx, store, "admin").ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(role).To(Equal(permission.RoleSuperAdmin))
		})

		It("restores a bootstrap admin that was disabled and demoted", func() {
			// Given the bootstrap account exists but is no longer an active admin
			_, err := service.EnsureAdmin(ctx, "admin", "admin@example.com", "change-me-now")
			Expect(err).NotTo(HaveOccurred())
			stale := mustFind(ctx, store, "admin")
			stale.Status = identity.StatusDisabled
			stale.Role = permission.RoleGuest
			Expect(store.Put(ctx, stale)).To(Succeed())

			// When the server boots again
			restored, err := service.EnsureAdmin(ctx, "admin", "admin@example.com", "change-me-now")

			// Then the same account is re-activated as super_admin
			Expect(err).NotTo(HaveOccurred())
			Expect(restored).To(BeTrue())
			user, err := service.GetUser(ctx, stale.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Role).To(Equal("super_admin"))
			Expect(user.Status).To(Equal("active"))
			Expect(seen.types()).To(ContainElement(events.EventTypeUserRoleChanged))

			users, _ := service.ListUsers(ctx, true)
			Expect(users).To(HaveLen(1))
		})
	})

	Describe("directory adapter", func() {
		It("sets roles and reports distribution", func() {
			user, _ := service.CreateUser(ctx, newUser("alice", ""))
			Expect(service.SetRole(ctx, user.ID, permission.RoleAdmin)).To(Succeed())
			Expect(seen.types()).To(ConsistOf(events.EventTypeUserRoleChanged))

			dist, err := service.RoleDistribution(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(dist).To(Equal(map[string]int{"admin": 1}))

			_, err = service.RoleOf(ctx, "missing")
			Expect(err).To(MatchError(identity.ErrNotFound))
		})
	})
})

func mustFind(ctx context.Context, store identity.Store, login string) *identity.User {
	user, err := store.FindByLogin(ctx, login)
	Expect(err).NotTo(HaveOccurred())
	return user
}
