// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

type response struct {
	status int
	body   map[string]any
}

func call(method, path, body, token string) response {
	GinkgoHelper()
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, body: map[string]any{}}
	Expect(json.NewDecoder(resp.Body).Decode(&out.body)).To(Succeed())
	return out
}

func register(name, email, password string) response {
	GinkgoHelper()
	return call(http.MethodPost, "/auth/register",
		fmt.Sprintf(`{"name":%q,"email":%q,"password":%q}`, name, email, password), "")
}

func login(email, password string) response {
	GinkgoHelper()
	return call(http.MethodPost, "/auth/login",
		fmt.Sprintf(`{"email":%q,"password":%q}`, email, password), "")
}

var _ = Describe("Auth flow", func() {
	BeforeEach(func() {
		cleanupDatabase()
	})

	It("registers, logs in and lists users with the issued token", func() {
		reg := register("John", "john@x.com", "pw123")
		Expect(reg.status).To(Equal(http.StatusCreated))
		Expect(reg.body["message"]).To(Equal("User registered successfully"))

		lg := login("john@x.com", "pw123")
		Expect(lg.status).To(Equal(http.StatusOK))
		Expect(lg.body["message"]).To(Equal("Logged in successfully"))
		token, ok := lg.body["token"].(string)
		Expect(ok).To(BeTrue())
		Expect(token).NotTo(BeEmpty())

		for _, path := range []string{"/users", "/auth/users"} {
			list := call(http.MethodGet, path, "", token)
			Expect(list.status).To(Equal(http.StatusOK), path)
			users, ok := list.body["users"].([]any)
			Expect(ok).To(BeTrue())
			Expect(users).To(HaveLen(1))
			user := users[0].(map[string]any)
			Expect(user["email"]).To(Equal("john@x.com"))
			Expect(user["name"]).To(Equal("John"))
			Expect(user).NotTo(HaveKey("password"))
			Expect(user).NotTo(HaveKey("password_hash"))
		}
	})

	It("stores a bcrypt hash, never the password", func() {
		Expect(register("Ann", "ann@x.com", "secret-pw").status).To(Equal(http.StatusCreated))

		var hash string
		err := env.pool.QueryRow(env.ctx, "SELECT password_hash FROM users WHERE email = $1", "ann@x.com").Scan(&hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).NotTo(Equal("secret-pw"))
		Expect(hash).To(HavePrefix("$2"))
	})

	It("rejects a second registration with the same email", func() {
		Expect(register("John", "john@x.com", "pw123").status).To(Equal(http.StatusCreated))

		dup := register("Johnny", "john@x.com", "other")
		Expect(dup.status).To(Equal(http.StatusBadRequest))
		Expect(dup.body["message"]).To(Equal("User already exists"))
	})

	It("admits exactly one of many concurrent registrations for an email", func() {
		const workers = 8
		statuses := make([]int, workers)

		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				statuses[i] = register(fmt.Sprintf("User %d", i), "race@x.com", "pw").status
			}()
		}
		wg.Wait()

		Expect(statuses).To(ContainElement(http.StatusCreated))
		created := 0
		for _, s := range statuses {
			if s == http.StatusCreated {
				created++
			} else {
				Expect(s).To(Equal(http.StatusBadRequest))
			}
		}
		Expect(created).To(Equal(1))
	})

	It("gives the same answer for an unknown email and a wrong password", func() {
		Expect(register("John", "john@x.com", "pw123").status).To(Equal(http.StatusCreated))

		unknown := login("nobody@x.com", "pw123")
		wrong := login("john@x.com", "nope")

		Expect(unknown.status).To(Equal(http.StatusBadRequest))
		Expect(wrong.status).To(Equal(http.StatusBadRequest))
		Expect(unknown.body).To(Equal(wrong.body))
		Expect(unknown.body["message"]).To(Equal("Invalid credentials"))
	})

	Describe("the bearer guard", func() {
		It("answers 401 without a token", func() {
			res := call(http.MethodGet, "/users", "", "")
			Expect(res.status).To(Equal(http.StatusUnauthorized))
			Expect(res.body["message"]).To(Equal("Not authorized, no token"))
		})

		It("answers 403 for a garbage token", func() {
			res := call(http.MethodGet, "/users", "", "not-a-jwt")
			Expect(res.status).To(Equal(http.StatusForbidden))
			Expect(res.body["message"]).To(Equal("Forbidden, invalid or expired token"))
		})

		It("answers 403 for a token signed with another secret", func() {
			forged := signToken("other-secret", time.Now().Add(time.Hour))
			Expect(call(http.MethodGet, "/users", "", forged).status).To(Equal(http.StatusForbidden))
		})

		It("answers 403 for an expired token", func() {
			expired := signToken(testSecret, time.Now().Add(-time.Minute))
			Expect(call(http.MethodGet, "/auth/users", "", expired).status).To(Equal(http.StatusForbidden))
		})
	})
})

func signToken(secret string, exp time.Time) string {
	GinkgoHelper()
	claims := jwt.RegisteredClaims{
		Subject:   "01HZN3XS000000000000000000",
		IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	Expect(err).NotTo(HaveOccurred())
	return signed
}
