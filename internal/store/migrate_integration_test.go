// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

//go:build integration

package store_test

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/wardenauth/warden/internal/store"
)

var authTables = []string{"principals", "refresh_credentials", "sessions"}

var _ = Describe("Auth schema migrations", Ordered, func() {
	var (
		migrator *store.Migrator
		pool     *pgxpool.Pool
	)

	BeforeAll(func() {
		connStr := createDatabase("warden_migrations")
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		pool, err = store.Connect(suiteCtx, connStr, 2, slog.Default())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if migrator != nil {
			_ = migrator.Close()
		}
	})

	It("starts with no auth tables and both migrations pending", func() {
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(BeZero())
		Expect(status.Pending).To(Equal([]uint{1, 2}))
		for _, table := range authTables {
			Expect(tableExists(pool, table)).To(BeFalse(), table)
		}
	})

	It("creates the principal, refresh credential and session tables on Up", func() {
		Expect(migrator.Up()).To(Succeed())

		for _, table := range authTables {
			Expect(tableExists(pool, table)).To(BeTrue(), table)
		}
		Expect(indexDef(pool, "idx_principals_email_lower")).To(ContainSubstring("UNIQUE INDEX"))
		Expect(indexDef(pool, "idx_principals_email_lower")).To(ContainSubstring("lower(email)"))

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Name).To(Equal("000002_principal_login_index"))
		Expect(status.Dirty).To(BeFalse())
		Expect(status.Pending).To(BeEmpty())
	})

	It("indexes last_login_at at 000002", func() {
		def := indexDef(pool, "idx_principals_last_login")
		Expect(def).To(ContainSubstring("ON public.principals"))
		Expect(def).To(ContainSubstring("last_login_at DESC NULLS LAST"))
	})

	It("drops only the login index when 000002 is rolled back", func() {
		Expect(migrator.Steps(-1)).To(Succeed())

		Expect(indexDef(pool, "idx_principals_last_login")).To(BeEmpty())
		Expect(indexDef(pool, "idx_principals_email_lower")).NotTo(BeEmpty())
		for _, table := range authTables {
			Expect(tableExists(pool, table)).To(BeTrue(), table)
		}

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Name).To(Equal("000001_auth"))
		Expect(status.Pending).To(Equal([]uint{2}))
	})

	It("removes every auth table on Down", func() {
		Expect(migrator.Down()).To(Succeed())

		for _, table := range authTables {
			Expect(tableExists(pool, table)).To(BeFalse(), table)
		}
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("re-applies cleanly after a full rollback", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(indexDef(pool, "idx_principals_last_login")).NotTo(BeEmpty())
		Expect(migrator.Up()).To(Succeed(), "Up on a current schema is a no-op")
	})
})
