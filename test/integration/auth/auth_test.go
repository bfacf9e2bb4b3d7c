// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

//go:build integration

package auth_test

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

var _ = Describe("Auth API", func() {
	for _, b := range []backend{postgresSessions, redisSessions} {
		Context("with "+string(b)+" sessions", func() {
			var (
				ctx    context.Context
				e      *env
				client *http.Client
			)

			BeforeEach(func() {
				ctx = context.Background()
				e = newEnv(ctx, b)
				client = newClient()
			})

			AfterEach(func() {
				e.Close()
			})

			It("registers, reads, updates and logs out", func() {
				resp := e.call(ctx, client, http.MethodPost, "/api/register",
					`{"username":"maria","secret":"s3cret","conversionAge":12}`)
				Expect(resp.status).To(Equal(http.StatusCreated), resp.body)
				id := mustULID(resp.json()["id"])

				var hash string
				Expect(db.Pool.QueryRow(ctx, "SELECT secret_hash FROM users WHERE id = $1", id.String()).
					Scan(&hash)).To(Succeed())
				Expect(hash).To(MatchRegexp(`^[0-9a-f]{128}\.[0-9a-f]{32}$`))
				Expect(hash).NotTo(ContainSubstring("s3cret"))

				resp = e.call(ctx, client, http.MethodGet, "/api/user", "")
				Expect(resp.status).To(Equal(http.StatusOK))
				Expect(resp.json()["username"]).To(Equal("maria"))

				resp = e.call(ctx, client, http.MethodPatch, "/api/user", `{"baptismDate":"2001-05-20","useTTS":true}`)
				Expect(resp.status).To(Equal(http.StatusOK), resp.body)
				Expect(resp.json()).To(HaveKeyWithValue("mutationCount", BeNumerically("==", 1)))
				Expect(resp.json()).To(HaveKeyWithValue("conversionAge", BeNumerically("==", 12)))

				resp = e.call(ctx, client, http.MethodPost, "/api/logout", "")
				Expect(resp.status).To(Equal(http.StatusOK))

				resp = e.call(ctx, client, http.MethodGet, "/api/user", "")
				Expect(resp.status).To(Equal(http.StatusUnauthorized))
			})

			It("logs in with the stored secret and rejects a wrong one", func() {
				Expect(e.call(ctx, newClient(), http.MethodPost, "/api/register",
					`{"username":"maria","secret":"s3cret"}`).status).To(Equal(http.StatusCreated))

				resp := e.call(ctx, client, http.MethodPost, "/api/login", `{"username":"Maria","secret":"wrong"}`)
				Expect(resp.status).To(Equal(http.StatusUnauthorized))
				Expect(resp.json()["message"]).To(Equal("incorrect secret"))
				Expect(countRows(ctx, "SELECT count(*) FROM auth_audit_log WHERE kind = 'login_failed'")).To(Equal(1))

				resp = e.call(ctx, client, http.MethodPost, "/api/login", `{"username":"maria","secret":"s3cret"}`)
				Expect(resp.status).To(Equal(http.StatusOK), resp.body)
				Expect(resp.json()["lastLogin"]).NotTo(BeNil())
				Expect(sessionCookie(resp.cookies)).NotTo(BeNil())
			})

			It("rejects duplicate usernames regardless of case", func() {
				Expect(e.call(ctx, newClient(), http.MethodPost, "/api/register",
					`{"username":"maria","secret":"one"}`).status).To(Equal(http.StatusCreated))

				resp := e.call(ctx, client, http.MethodPost, "/api/register", `{"username":"MARIA","secret":"two"}`)
				Expect(resp.status).To(Equal(http.StatusBadRequest))
				Expect(resp.body).To(Equal("username already exists"))
				Expect(countRows(ctx, "SELECT count(*) FROM users")).To(Equal(1))
			})

			It("bootstraps the privileged account on first default-secret login", func() {
				Expect(countRows(ctx, "SELECT count(*) FROM users")).To(Equal(0))

				resp := e.call(ctx, client, http.MethodPost, "/api/login", `{"username":"admin","secret":"admin123"}`)
				Expect(resp.status).To(Equal(http.StatusOK), resp.body)
				body := resp.json()
				Expect(body["id"]).To(Equal("00000000000000000000000001"))
				Expect(body["isPrivileged"]).To(BeTrue())

				Expect(countRows(ctx, "SELECT count(*) FROM users WHERE is_privileged")).To(Equal(1))
				Expect(countRows(ctx,
					"SELECT count(*) FROM auth_audit_log WHERE kind = 'privileged_bootstrapped'")).To(Equal(1))

				resp = e.call(ctx, newClient(), http.MethodPost, "/api/login", `{"username":"admin","secret":"admin123"}`)
				Expect(resp.status).To(Equal(http.StatusOK))
				Expect(countRows(ctx, "SELECT count(*) FROM users")).To(Equal(1))
			})

			It("rotates the session on login", func() {
				Expect(e.call(ctx, client, http.MethodPost, "/api/register",
					`{"username":"maria","secret":"s3cret"}`).status).To(Equal(http.StatusCreated))
				resp := e.call(ctx, client, http.MethodPost, "/api/login", `{"username":"maria","secret":"s3cret"}`)
				first := sessionCookie(resp.cookies)
				Expect(first).NotTo(BeNil())

				resp = e.call(ctx, client, http.MethodPost, "/api/login", `{"username":"maria","secret":"s3cret"}`)
				Expect(resp.status).To(Equal(http.StatusOK))

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.server.URL+"/api/user", nil)
				Expect(err).NotTo(HaveOccurred())
				req.AddCookie(first)
				stale, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(stale.Body.Close()).To(Succeed())
				Expect(stale.StatusCode).To(Equal(http.StatusUnauthorized))

				Expect(e.call(ctx, client, http.MethodGet, "/api/user", "").status).To(Equal(http.StatusOK))
			})
		})
	}

	Context("with postgres sessions", func() {
		It("drops sessions when the user row is deleted", func() {
			ctx := context.Background()
			e := newEnv(ctx, postgresSessions)
			DeferCleanup(e.Close)
			client := newClient()

			resp := e.call(ctx, client, http.MethodPost, "/api/register", `{"username":"maria","secret":"s3cret"}`)
			Expect(resp.status).To(Equal(http.StatusCreated))
			Expect(countRows(ctx, "SELECT count(*) FROM sessions")).To(Equal(1))

			_, err := db.Pool.Exec(ctx, "DELETE FROM users WHERE username = 'maria'")
			Expect(err).NotTo(HaveOccurred())
			Expect(countRows(ctx, "SELECT count(*) FROM sessions")).To(Equal(0))

			Expect(e.call(ctx, client, http.MethodGet, "/api/user", "").status).To(Equal(http.StatusUnauthorized))
		})
	})
})
