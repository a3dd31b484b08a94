// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package cli_test

import (
	"context"
	"os/exec"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// schoolapi runs the CLI against the test database with no JWT secret.
func schoolapi(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "go", append([]string{"run", "."}, args...)...)
	cmd.Dir = "../../../cmd/schoolapi"
	cmd.Env = append(cmd.Environ(), "DATABASE_URL="+env.pg.URL, "JWT_SECRET=")
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func usersTableExists(ctx context.Context) bool {
	var exists bool
	err := env.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'users')",
	).Scan(&exists)
	Expect(err).NotTo(HaveOccurred())
	return exists
}

var _ = Describe("Migrate Command", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("creates, reports and drops the schema", func() {
		output, err := schoolapi(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", output)
		Expect(output).To(ContainSubstring("Migrations completed successfully"))
		Expect(usersTableExists(ctx)).To(BeTrue())

		output, err = schoolapi(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), "second migrate up failed: %s", output)

		output, err = schoolapi(ctx, "migrate", "status")
		Expect(err).NotTo(HaveOccurred(), "migrate status failed: %s", output)
		Expect(output).To(ContainSubstring("Schema is up to date"))

		output, err = schoolapi(ctx, "migrate", "down")
		Expect(err).NotTo(HaveOccurred(), "migrate down failed: %s", output)
		Expect(usersTableExists(ctx)).To(BeFalse())

		output, err = schoolapi(ctx, "migrate", "status")
		Expect(err).NotTo(HaveOccurred())
		Expect(output).To(ContainSubstring("Pending migrations"))
	})

	It("refuses to serve without a JWT secret", func() {
		output, err := schoolapi(ctx, "serve", "--metrics-addr=")
		Expect(err).To(HaveOccurred())
		Expect(output).To(ContainSubstring("JWT_SECRET is required"))
	})
})
