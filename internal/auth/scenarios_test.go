// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/auth/authtest"
)

func errorCode(err error) any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Code()
}

var _ = Describe("Auth lifecycle", func() {
	const (
		email  = "alice@example.com"
		secret = "Secret123!"
	)

	var (
		ctx       context.Context
		h         *authtest.Harness
		principal *auth.Principal
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		h, err = authtest.NewHarness(testNow)
		Expect(err).NotTo(HaveOccurred())

		principal, err = h.Service.Register(ctx, email, secret, auth.Profile{DisplayName: "Alice"})
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Service.SetStatus(ctx, principal.ID, auth.StatusActive)).To(Succeed())
	})

	failLogin := func(times int) {
		for range times {
			_, err := h.Service.Login(ctx, email, "wrong-password", nil, nil)
			Expect(err).To(MatchError(ContainSubstring("invalid credentials")))
		}
	}

	Describe("Registration", func() {
		It("rejects a second registration of the same email in any case", func() {
			_, err := h.Service.Register(ctx, "ALICE@example.com", "Other123!", auth.Profile{})
			Expect(err).To(MatchError(auth.ErrConflict))
		})

		It("does not distinguish unknown email from wrong password", func() {
			_, unknown := h.Service.Login(ctx, "nobody@example.com", secret, nil, nil)
			_, wrong := h.Service.Login(ctx, email, "wrong-password", nil, nil)
			Expect(unknown.Error()).To(Equal(wrong.Error()))
			Expect(errorCode(unknown)).To(Equal(errorCode(wrong)))
		})
	})

	Describe("Lockout", func() {
		It("never reports a lock below the threshold", func() {
			for range auth.DefaultLockoutThreshold - 1 {
				_, err := h.Service.Login(ctx, email, "wrong-password", nil, nil)
				Expect(err).To(MatchError(ContainSubstring("invalid credentials")))
				Expect(err).NotTo(MatchError(ContainSubstring("locked")))
			}
		})

		It("locks after five failures and unlocks after the window", func() {
			failLogin(5)

			_, err := h.Service.Login(ctx, email, secret, nil, nil)
			Expect(err).To(MatchError(ContainSubstring("account is locked, try again in 30 minutes")))
			Expect(errorCode(err)).To(Equal("AUTH_ACCOUNT_LOCKED"))

			h.Clock.Advance(31 * time.Minute)
			result, err := h.Service.Login(ctx, email, secret, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Tokens.AccessToken).NotTo(BeEmpty())
			Expect(result.Tokens.RefreshToken).NotTo(BeEmpty())
			Expect(result.Principal.FailedAttempts).To(BeZero())
			Expect(result.Principal.LockedUntil).To(BeNil())
		})

		It("reports non-increasing minutes while locked", func() {
			failLogin(5)

			last := int(auth.DefaultLockoutDuration.Minutes())
			for range 6 {
				_, err := h.Service.Login(ctx, email, secret, nil, nil)
				Expect(errorCode(err)).To(Equal("AUTH_ACCOUNT_LOCKED"))
				oopsErr, ok := oops.AsOops(err)
				Expect(ok).To(BeTrue())
				minutes, ok := oopsErr.Context()["minutes_remaining"].(int)
				Expect(ok).To(BeTrue())
				Expect(minutes).To(BeNumerically("<=", last))
				last = minutes
				h.Clock.Advance(4*time.Minute + 30*time.Second)
			}
		})

		It("needs exactly five fresh failures to re-lock after a success", func() {
			failLogin(4)
			_, err := h.Service.Login(ctx, email, secret, nil, nil)
			Expect(err).NotTo(HaveOccurred())

			failLogin(4)
			_, err = h.Service.Login(ctx, email, secret, nil, nil)
			Expect(err).NotTo(HaveOccurred(), "four failures after a reset must not lock")

			failLogin(5)
			_, err = h.Service.Login(ctx, email, secret, nil, nil)
			Expect(err).To(MatchError(auth.ErrUnauthorized))
			Expect(errorCode(err)).To(Equal("AUTH_ACCOUNT_LOCKED"))
		})

		It("counts failures through ValidateUser", func() {
			for range 5 {
				p, err := h.Service.ValidateUser(ctx, email, "wrong-password")
				Expect(err).NotTo(HaveOccurred())
				Expect(p).To(BeNil())
			}

			p, err := h.Service.ValidateUser(ctx, email, secret)
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(BeNil(), "locked principal must not validate")
		})
	})

	Describe("Sessions", func() {
		It("tracks logins from two IPs and revokes one by id", func() {
			first, err := h.Service.Login(ctx, email, secret, ptr("203.0.113.1"), ptr("Firefox"))
			Expect(err).NotTo(HaveOccurred())
			h.Clock.Advance(time.Second)
			_, err = h.Service.Login(ctx, email, secret, ptr("203.0.113.2"), ptr("Safari"))
			Expect(err).NotTo(HaveOccurred())

			sessions, err := h.Registry.ListActive(ctx, principal.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(2))

			Expect(h.Registry.Revoke(ctx, first.Session.ID, principal.ID)).To(Succeed())

			sessions, err = h.Registry.ListActive(ctx, principal.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
			Expect(*sessions[0].IPAddress).To(Equal("203.0.113.2"))

			count, err := h.Registry.Count(ctx, principal.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
		})

		It("revokes all sessions, optionally keeping the current one", func() {
			var current *auth.Session
			for i := range 3 {
				result, err := h.Service.Login(ctx, email, secret, ptr("198.51.100.1"), nil)
				Expect(err).NotTo(HaveOccurred())
				if i == 1 {
					current = result.Session
				}
				h.Clock.Advance(time.Second)
			}

			n, err := h.Registry.RevokeAll(ctx, principal.ID, &current.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))

			sessions, err := h.Registry.ListActive(ctx, principal.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
			Expect(sessions[0].ID).To(Equal(current.ID))

			_, err = h.Registry.RevokeAll(ctx, principal.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			sessions, err = h.Registry.ListActive(ctx, principal.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(BeEmpty())
		})

		It("stops validating a revoked token even though it still verifies", func() {
			result, err := h.Service.Login(ctx, email, secret, ptr("198.51.100.7"), nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(h.Registry.Revoke(ctx, result.Session.ID, principal.ID)).To(Succeed())
			_, err = h.Issuer.VerifyAccessToken(result.Tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())

			session, err := h.Registry.Validate(ctx, result.Tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(session).To(BeNil())
		})
	})

	Describe("Refresh rotation", func() {
		It("rejects reuse after consumption, logout and expiry", func() {
			login, err := h.Service.Login(ctx, email, secret, nil, nil)
			Expect(err).NotTo(HaveOccurred())

			rotated, err := h.Service.RefreshToken(ctx, principal.ID, login.Tokens.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
			_, err = h.Service.RefreshToken(ctx, principal.ID, login.Tokens.RefreshToken)
			Expect(err).To(MatchError(auth.ErrUnauthorized))

			Expect(h.Service.Logout(ctx, principal.ID, rotated.RefreshToken, nil)).To(Succeed())
			Expect(h.Service.Logout(ctx, principal.ID, rotated.RefreshToken, nil)).To(Succeed())
			_, err = h.Service.RefreshToken(ctx, principal.ID, rotated.RefreshToken)
			Expect(err).To(MatchError(auth.ErrUnauthorized))

			again, err := h.Service.Login(ctx, email, secret, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			h.Clock.Advance(auth.DefaultRefreshTokenTTL)
			_, err = h.Service.RefreshToken(ctx, principal.ID, again.Tokens.RefreshToken)
			Expect(err).To(MatchError(auth.ErrUnauthorized))
		})
	})

	Describe("Suspension", func() {
		It("cuts off every session and refresh credential", func() {
			login, err := h.Service.Login(ctx, email, secret, ptr("192.0.2.9"), nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(h.Service.SetStatus(ctx, principal.ID, auth.StatusSuspended)).To(Succeed())

			_, _, err = h.Service.Authenticate(ctx, login.Tokens.AccessToken)
			Expect(err).To(MatchError(auth.ErrUnauthorized))
			Expect(h.Refresh.Len()).To(BeZero())

			_, err = h.Service.Login(ctx, email, secret, nil, nil)
			Expect(err).To(MatchError(ContainSubstring("account is not active")))
		})
	})
})
