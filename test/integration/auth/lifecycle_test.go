// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

//go:build integration

package auth_test

import (
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

const secret = "correct horse battery staple"

func errCode(err error) any {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Code()
	}
	return nil
}

// activePrincipal registers email and marks it ACTIVE.
func activePrincipal(email string) *auth.Principal {
	p, err := env.Service.Register(env.ctx, email, secret, auth.Profile{DisplayName: "Test"})
	Expect(err).NotTo(HaveOccurred())
	Expect(env.Service.SetStatus(env.ctx, p.ID, auth.StatusActive)).To(Succeed())
	return p
}

func login(email string) *auth.LoginResult {
	ip, ua := "198.51.100.4", "integration/1.0"
	result, err := env.Service.Login(env.ctx, email, secret, &ip, &ua)
	Expect(err).NotTo(HaveOccurred())
	Expect(result.Session).NotTo(BeNil())
	return result
}

var _ = Describe("Auth lifecycle", func() {
	BeforeEach(func() {
		cleanupTables(env.ctx, env.pool)
	})

	It("runs register, activate, login, refresh and logout end to end", func() {
		p, err := env.Service.Register(env.ctx, "Grace@Example.com", secret, auth.Profile{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Email).To(Equal("grace@example.com"))
		Expect(p.SecretDigest).To(BeEmpty())

		_, err = env.Service.Login(env.ctx, "grace@example.com", secret, nil, nil)
		Expect(errCode(err)).To(Equal("AUTH_ACCOUNT_INACTIVE"))

		Expect(env.Service.SetStatus(env.ctx, p.ID, auth.StatusActive)).To(Succeed())
		result := login("GRACE@example.com")

		claims, session, err := env.Service.Authenticate(env.ctx, result.Tokens.AccessToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.Subject).To(Equal(p.ID.String()))
		Expect(session.ID).To(Equal(result.Session.ID))

		stored, err := env.Principals.GetByID(env.ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.LastLoginAt).NotTo(BeNil())
		Expect(*stored.LastLoginIP).To(Equal("198.51.100.4"))

		pair, err := env.Service.RefreshToken(env.ctx, p.ID, result.Tokens.RefreshToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(pair.RefreshToken).NotTo(Equal(result.Tokens.RefreshToken))

		_, err = env.Service.RefreshToken(env.ctx, p.ID, result.Tokens.RefreshToken)
		Expect(errors.Is(err, auth.ErrUnauthorized)).To(BeTrue(), "a consumed refresh token must not validate again")

		access := result.Tokens.AccessToken
		Expect(env.Service.Logout(env.ctx, p.ID, pair.RefreshToken, &access)).To(Succeed())

		_, _, err = env.Service.Authenticate(env.ctx, access)
		Expect(errors.Is(err, auth.ErrUnauthorized)).To(BeTrue())
		_, err = env.Service.RefreshToken(env.ctx, p.ID, pair.RefreshToken)
		Expect(errors.Is(err, auth.ErrUnauthorized)).To(BeTrue())
	})

	It("rejects duplicate emails regardless of case", func() {
		activePrincipal("heidi@example.com")

		_, err := env.Service.Register(env.ctx, "HEIDI@example.com", secret, auth.Profile{})
		Expect(errors.Is(err, auth.ErrConflict)).To(BeTrue())
	})

	It("logs in with the spelling used at registration", func() {
		p := activePrincipal(" Grace@Example.com ")

		for _, typed := range []string{" Grace@Example.com ", "grace@example.com", "GRACE@EXAMPLE.COM"} {
			result, err := env.Service.Login(env.ctx, typed, secret, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Principal.ID).To(Equal(p.ID))
		}
	})

	It("locks after repeated failures and unlocks when the lock expires", func() {
		p := activePrincipal("ivan@example.com")

		for range lockoutThreshold {
			_, err := env.Service.Login(env.ctx, "ivan@example.com", "wrong secret", nil, nil)
			Expect(errCode(err)).To(Equal("AUTH_INVALID_CREDENTIALS"))
		}

		_, err := env.Service.Login(env.ctx, "ivan@example.com", secret, nil, nil)
		Expect(errCode(err)).To(Equal("AUTH_ACCOUNT_LOCKED"))

		env.Clock.Advance(16 * time.Minute)

		_, err = env.Service.Login(env.ctx, "ivan@example.com", secret, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		stored, err := env.Principals.GetByID(env.ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.FailedAttempts).To(BeZero())
		Expect(stored.LockedUntil).To(BeNil())
	})

	// concurrentFailures fires n wrong-secret logins at once and returns how
	// many were answered with invalid credentials, i.e. reached the increment.
	concurrentFailures := func(email string, n int) int {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			counted int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := env.Service.Login(env.ctx, email, "wrong secret", nil, nil)
				Expect(err).To(MatchError(auth.ErrUnauthorized))
				if errCode(err) == "AUTH_INVALID_CREDENTIALS" {
					mu.Lock()
					counted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		return counted
	}

	It("counts every concurrent failure up to the threshold", func() {
		p := activePrincipal("judy@example.com")

		// The lock is written only after the threshold-th increment, so no
		// attempt in this burst can observe it.
		Expect(concurrentFailures("judy@example.com", lockoutThreshold)).To(Equal(lockoutThreshold))

		stored, err := env.Principals.GetByID(env.ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.FailedAttempts).To(Equal(lockoutThreshold))
		Expect(stored.LockedUntil).NotTo(BeNil())
	})

	It("never ends below the number of increments past the threshold", func() {
		p := activePrincipal("judd@example.com")

		counted := concurrentFailures("judd@example.com", 4*lockoutThreshold)

		stored, err := env.Principals.GetByID(env.ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(counted).To(BeNumerically(">=", lockoutThreshold))
		// Late lock writes leave the counter alone, so it equals the number
		// of increments the store applied.
		Expect(stored.FailedAttempts).To(Equal(counted))
		Expect(stored.LockedUntil).NotTo(BeNil())
	})

	It("lets exactly one of two concurrent refreshes win", func() {
		p := activePrincipal("ken@example.com")
		result := login("ken@example.com")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, errs[i] = env.Service.RefreshToken(env.ctx, p.ID, result.Tokens.RefreshToken)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			Expect(errors.Is(err, auth.ErrUnauthorized)).To(BeTrue())
		}
		Expect(succeeded).To(Equal(1))
	})

	It("revokes every session and refresh credential on secret change", func() {
		p := activePrincipal("leo@example.com")
		first := login("leo@example.com")
		login("leo@example.com")

		Expect(env.Service.ChangeSecret(env.ctx, p.ID, secret, "an entirely new secret")).To(Succeed())

		n, err := env.Registry.Count(env.ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
		_, err = env.Service.RefreshToken(env.ctx, p.ID, first.Tokens.RefreshToken)
		Expect(errors.Is(err, auth.ErrUnauthorized)).To(BeTrue())

		_, err = env.Service.Login(env.ctx, "leo@example.com", secret, nil, nil)
		Expect(errCode(err)).To(Equal("AUTH_INVALID_CREDENTIALS"))
		_, err = env.Service.Login(env.ctx, "leo@example.com", "an entirely new secret", nil, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("revokes access on suspension", func() {
		p := activePrincipal("mallory@example.com")
		result := login("mallory@example.com")

		Expect(env.Service.SetStatus(env.ctx, p.ID, auth.StatusSuspended)).To(Succeed())

		_, _, err := env.Service.Authenticate(env.ctx, result.Tokens.AccessToken)
		Expect(errors.Is(err, auth.ErrUnauthorized)).To(BeTrue())
		_, err = env.Service.RefreshToken(env.ctx, p.ID, result.Tokens.RefreshToken)
		Expect(errors.Is(err, auth.ErrUnauthorized)).To(BeTrue())
		_, err = env.Service.Login(env.ctx, "mallory@example.com", secret, nil, nil)
		Expect(errCode(err)).To(Equal("AUTH_ACCOUNT_INACTIVE"))
	})

	It("keeps only the excepted session on revoke-all", func() {
		p := activePrincipal("nina@example.com")
		keep := login("nina@example.com")
		drop := login("nina@example.com")

		n, err := env.Registry.RevokeAll(env.ctx, p.ID, &keep.Session.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		_, _, err = env.Service.Authenticate(env.ctx, keep.Tokens.AccessToken)
		Expect(err).NotTo(HaveOccurred())
		_, _, err = env.Service.Authenticate(env.ctx, drop.Tokens.AccessToken)
		Expect(errors.Is(err, auth.ErrUnauthorized)).To(BeTrue())
	})

	It("sweeps expired sessions and refresh credentials", func() {
		p := activePrincipal("oscar@example.com")
		login("oscar@example.com")

		sweeper, err := auth.NewSweeper(env.Registry, env.Refresh, time.Hour, nil)
		Expect(err).NotTo(HaveOccurred())

		result, err := sweeper.RunOnce(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Sessions).To(BeZero())
		Expect(result.RefreshCredentials).To(BeZero())

		env.Clock.Advance(auth.DefaultRefreshTokenTTL + time.Minute)

		result, err = sweeper.RunOnce(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Sessions).To(Equal(int64(1)))
		Expect(result.RefreshCredentials).To(Equal(int64(1)))

		live, err := env.Sessions.CountAllLive(env.ctx, env.Clock.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(live).To(BeZero())
		n, err := env.Registry.Count(env.ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})
})
