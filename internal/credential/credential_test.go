package credential_test

import (
	"context"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/assistant-guard/internal/credential"
	"github.com/frahmantamala/assistant-guard/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ = Describe("Hasher", func() {
	hasher := credential.NewHasher(bcrypt.MinCost)

	It("should verify the original password", func() {
		hash, err := hasher.Hash("s3cret!")
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).NotTo(Equal("s3cret!"))
		Expect(hasher.Verify("s3cret!", hash)).To(BeTrue())
	})

	It("should reject a different password", func() {
		hash, _ := hasher.Hash("s3cret!")
		Expect(hasher.Verify("s3cret?", hash)).To(BeFalse())
	})

	It("should salt hashes", func() {
		a, _ := hasher.Hash("same")
		b, _ := hasher.Hash("same")
		Expect(a).NotTo(Equal(b))
	})

	It("should treat malformed hashes as a mismatch", func() {
		Expect(hasher.Verify("anything", "not-a-bcrypt-hash")).To(BeFalse())
		Expect(hasher.Verify("anything", "")).To(BeFalse())
	})
})

var _ = Describe("TokenService", func() {
	var (
		ctx       context.Context
		clk       *clock
		blacklist *credential.MemoryBlacklist
		tokens    *credential.TokenService
		identity  credential.Identity
	)

	BeforeEach(func() {
		ctx = context.Background()
		clk = &clock{now: time.Unix(1_700_000_000, 0)}
		blacklist = credential.NewMemoryBlacklist()
		tokens = credential.NewTokenService(testSecret, time.Hour, blacklist, logger.Discard(), credential.WithClock(clk.Now))
		identity = credential.Identity{UserID: "u1", Username: "alice", Email: "alice@example.com", Role: "user"}
	})

	Describe("Issue and Verify", func() {
		It("should round-trip identity claims", func() {
			// Given
			token, exp, err := tokens.Issue(identity)
			Expect(err).NotTo(HaveOccurred())

			// When
			claims, err := tokens.Verify(ctx, token)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.UserID).To(Equal("u1"))
			Expect(claims.Username).To(Equal("alice"))
			Expect(claims.Role).To(Equal("user"))
			Expect(claims.ID).NotTo(BeEmpty())
			Expect(exp).To(Equal(clk.Now().Add(time.Hour)))
		})

		It("should give every token a unique id", func() {
			a, _, _ := tokens.Issue(identity)
			b, _, _ := tokens.Issue(identity)
			ca, _ := tokens.Verify(ctx, a)
			cb, _ := tokens.Verify(ctx, b)
			Expect(ca.ID).NotTo(Equal(cb.ID))
		})

		It("should verify until the expiry instant and fail at it", func() {
			token, _, _ := tokens.Issue(identity)

			clk.Advance(time.Hour - time.Second)
			_, err := tokens.Verify(ctx, token)
			Expect(err).NotTo(HaveOccurred())

			clk.Advance(time.Second)
			_, err = tokens.Verify(ctx, token)
			Expect(err).To(MatchError(credential.ErrTokenExpired))
		})

		It("should reject tokens signed with another secret", func() {
			other := credential.NewTokenService("another-secret-that-is-32-chars-long!", time.Hour, blacklist, logger.Discard(), credential.WithClock(clk.Now))
			token, _, _ := other.Issue(identity)
			_, err := tokens.Verify(ctx, token)
			Expect(err).To(MatchError(credential.ErrInvalidToken))
		})

		It("should reject garbage", func() {
			_, err := tokens.Verify(ctx, "not.a.token")
			Expect(err).To(MatchError(credential.ErrInvalidToken))
			_, err = tokens.Verify(ctx, "")
			Expect(err).To(MatchError(credential.ErrInvalidToken))
		})
	})

	Describe("Revoke", func() {
		It("should make verification fail before natural expiry", func() {
			token, _, _ := tokens.Issue(identity)
			Expect(tokens.Revoke(ctx, token)).To(BeTrue())

			_, err := tokens.Verify(ctx, token)
			Expect(err).To(MatchError(credential.ErrTokenRevoked))
		})

		It("should return false for unparseable tokens", func() {
			Expect(tokens.Revoke(ctx, "garbage")).To(BeFalse())
		})
	})

	Describe("PurgeExpiredBlacklist", func() {
		It("should only drop entries past expiry and be idempotent", func() {
			old, _, _ := tokens.Issue(identity)
			Expect(tokens.Revoke(ctx, old)).To(BeTrue())
			clk.Advance(30 * time.Minute)
			fresh, _, _ := tokens.Issue(identity)
			Expect(tokens.Revoke(ctx, fresh)).To(BeTrue())

			clk.Advance(31 * time.Minute)
			removed, err := tokens.PurgeExpiredBlacklist(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(1))

			removed, err = tokens.PurgeExpiredBlacklist(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeZero())
			Expect(blacklist.Len(ctx)).To(Equal(1))
		})
	})

	Describe("Info", func() {
		It("should decode expired and revoked tokens", func() {
			token, _, _ := tokens.Issue(identity)
			tokens.Revoke(ctx, token)
			clk.Advance(2 * time.Hour)

			info, err := tokens.Info(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Username).To(Equal("alice"))
			Expect(info.IsExpired).To(BeTrue())
			Expect(info.IsBlacklisted).To(BeTrue())
		})
	})
})

var _ = Describe("RedisBlacklist", func() {
	var (
		mr        *miniredis.Miniredis
		client    *redis.Client
		blacklist *credential.RedisBlacklist
		ctx       context.Context
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		blacklist = credential.NewRedisBlacklist(client, "test-blacklist")
	})

	AfterEach(func() {
		client.Close()
		mr.Close()
	})

	It("should remember revoked ids until they expire", func() {
		Expect(blacklist.Add(ctx, "jti-1", time.Now().Add(time.Minute))).To(Succeed())
		Expect(blacklist.Contains(ctx, "jti-1")).To(BeTrue())
		Expect(blacklist.Contains(ctx, "jti-2")).To(BeFalse())
		Expect(blacklist.Len(ctx)).To(Equal(1))

		mr.FastForward(2 * time.Minute)
		Expect(blacklist.Contains(ctx, "jti-1")).To(BeFalse())
	})

	It("should key ids with a single separator after the prefix", func() {
		colon := credential.NewRedisBlacklist(client, "edge:revoked:")
		Expect(colon.Add(ctx, "jti-9", time.Now().Add(time.Minute))).To(Succeed())
		Expect(mr.Exists("edge:revoked:jti-9")).To(BeTrue())
		Expect(mr.Keys()).NotTo(ContainElement("edge:revoked::jti-9"))
	})

	It("should skip already expired ids", func() {
		Expect(blacklist.Add(ctx, "old", time.Now().Add(-time.Minute))).To(Succeed())
		Expect(blacklist.Contains(ctx, "old")).To(BeFalse())
	})

	It("should work as the token service store", func() {
		tokens := credential.NewTokenService(testSecret, time.Hour, blacklist, logger.Discard())
		token, _, err := tokens.Issue(credential.Identity{UserID: "u1", Role: "user"})
		Expect(err).NotTo(HaveOccurred())
		Expect(tokens.Revoke(ctx, token)).To(BeTrue())
		_, err = tokens.Verify(ctx, token)
		Expect(err).To(MatchError(credential.ErrTokenRevoked))
	})

	It("should fail closed when redis is down", func() {
		tokens := credential.NewTokenService(testSecret, time.Hour, blacklist, logger.Discard())
		token, _, _ := tokens.Issue(credential.Identity{UserID: "u1", Role: "user"})
		mr.Close()
		_, err := tokens.Verify(ctx, token)
		Expect(err).To(MatchError(credential.ErrInvalidToken))
	})
})
