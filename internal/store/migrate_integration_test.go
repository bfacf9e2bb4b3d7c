// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/novacriatura/novacriatura/internal/store"
	"github.com/novacriatura/novacriatura/internal/store/storetest"
)

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx      context.Context
		db       *storetest.Database
		migrator *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		db, err = storetest.StartPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(db.ConnStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			Expect(migrator.Close()).To(Succeed())
		}
		if db != nil {
			db.Close(ctx)
		}
	})

	It("reports every embedded migration as applied", func() {
		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Dirty).To(BeFalse())
		Expect(st.Version).To(Equal(uint(3)))
		Expect(st.Applied).To(Equal([]uint{1, 2, 3}))
		Expect(st.Pending).To(BeEmpty())
	})

	It("enforces case-insensitive username uniqueness", func() {
		now := time.Now().UTC()
		_, err := db.Pool.Exec(ctx,
			`INSERT INTO users (id, username, secret_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
			"01HZZZZZZZZZZZZZZZZZZZZZZA", "Maria", "h.s", now)
		Expect(err).NotTo(HaveOccurred())

		_, err = db.Pool.Exec(ctx,
			`INSERT INTO users (id, username, secret_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
			"01HZZZZZZZZZZZZZZZZZZZZZZB", "maria", "h.s", now)
		Expect(err).To(HaveOccurred())
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(3)))
	})

	It("rolls everything back and forces a version", func() {
		Expect(migrator.Down()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Force(2)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
	})
})
