package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/models"
	"bitbucket.org/bloomspal/sonia_backend/utils"
)

func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "sonia_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if rdb := config.GetRedisDB(); rdb != nil {
		// fresh container, but a retried test reuses the connection
		_ = rdb.FlushDB(context.Background()).Err()
	}
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := utils.SetActorNameInContext(context.Background(), "Integration Test")
	return ctx
}

func TestConcurrentClaimNumbersNeverCollide(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	const creations = 50
	var wg sync.WaitGroup
	numbers := make(chan string, creations)
	errs := make(chan error, creations)

	for i := 0; i < creations; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claim, err := models.CreateClaim(ctx, &models.NewClaim{
				ClaimType:   models.ClaimTypeDamaged,
				Description: fmt.Sprintf("concurrent creation %d", i),
			})
			if err != nil {
				errs <- err
				return
			}
			numbers <- claim.ClaimNumber
		}(i)
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Errorf("create claim: %v", err)
	}

	pattern := regexp.MustCompile(fmt.Sprintf(`^CLM-%d-\d{4}$`, time.Now().UTC().Year()))
	seen := make(map[string]bool)
	for number := range numbers {
		if !pattern.MatchString(number) {
			t.Errorf("claim number %q does not match the format", number)
		}
		if seen[number] {
			t.Errorf("duplicate claim number %q", number)
		}
		seen[number] = true
	}
	if len(seen) != creations {
		t.Errorf("got %d unique numbers, want %d", len(seen), creations)
	}
}

func TestClaimLifecycleHistory(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	claim, err := models.CreateClaim(ctx, &models.NewClaim{
		ClaimType:   models.ClaimTypeNotDelivered,
		Description: "package vanished",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	history, err := models.GetClaimHistory(ctx, claim.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].StatusFrom != nil || history[0].StatusTo != models.ClaimStatusNew {
		t.Fatalf("creation history wrong: %+v", history)
	}

	// same-status set is a no-op and leaves no history
	if _, err := models.ChangeClaimStatus(ctx, claim.ID, models.ClaimStatusNew, ""); err != nil {
		t.Fatalf("no-op transition: %v", err)
	}
	history, _ = models.GetClaimHistory(ctx, claim.ID)
	if len(history) != 1 {
		t.Fatalf("no-op transition wrote history: %d rows", len(history))
	}

	steps := []models.ClaimStatus{
		models.ClaimStatusInternalReview,
		models.ClaimStatusSentToCarrier,
		models.ClaimStatusCarrierInvestigation,
		models.ClaimStatusApproved,
		models.ClaimStatusReimbursementReceived,
		models.ClaimStatusClosed,
	}
	for _, next := range steps {
		if _, err := models.ChangeClaimStatus(ctx, claim.ID, next, "advance"); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}

	history, _ = models.GetClaimHistory(ctx, claim.ID)
	if len(history) != len(steps)+1 {
		t.Fatalf("got %d history rows, want %d", len(history), len(steps)+1)
	}
	prev := models.ClaimStatusNew
	for i, next := range steps {
		row := history[i+1]
		if row.StatusFrom == nil || *row.StatusFrom != prev || row.StatusTo != next {
			t.Errorf("row %d: %v -> %s, want %s -> %s", i+1, row.StatusFrom, row.StatusTo, prev, next)
		}
		prev = next
	}

	// closed is terminal for every write path
	if _, err := models.ChangeClaimStatus(ctx, claim.ID, models.ClaimStatusInternalReview, ""); err != models.ErrClaimClosed {
		t.Errorf("transition on closed claim: %v", err)
	}
	team := "logistics"
	if _, err := models.AssignClaim(ctx, claim.ID, &models.ClaimAssignment{AssignedToTeam: &team}); err != models.ErrClaimClosed {
		t.Errorf("assignment on closed claim: %v", err)
	}

	loaded, err := models.GetClaim(ctx, claim.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ClosedAt == nil || loaded.ResolvedAt == nil || loaded.SentToCarrierAt == nil {
		t.Error("milestone timestamps missing after full lifecycle")
	}
}

// Assignment writes only its own columns, so it can never revert a
// status transition it raced against.
func TestConcurrentAssignmentKeepsStatus(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	claim, err := models.CreateClaim(ctx, &models.NewClaim{
		ClaimType:   models.ClaimTypeLateDelivery,
		Description: "stuck in transit",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := models.ChangeClaimStatus(ctx, claim.ID, models.ClaimStatusInternalReview, ""); err != nil {
			t.Errorf("transition: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			team := fmt.Sprintf("team-%d", i)
			if _, err := models.AssignClaim(ctx, claim.ID, &models.ClaimAssignment{AssignedToTeam: &team}); err != nil {
				t.Errorf("assign: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	loaded, err := models.GetClaim(ctx, claim.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Status != models.ClaimStatusInternalReview {
		t.Errorf("status reverted to %s by a concurrent assignment", loaded.Status)
	}
	if loaded.AssignedToTeam != "team-19" {
		t.Errorf("assignment lost: got %q", loaded.AssignedToTeam)
	}
}

// A transition validated against a stale row must not overwrite a
// newer status.
func TestStaleTransitionDetected(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	claim, err := models.CreateClaim(ctx, &models.NewClaim{
		ClaimType: models.ClaimTypeDamaged,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// losers either see the refreshed row (no-op) or lose the
			// guarded write (validation error); neither may write history
			_, err := models.ChangeClaimStatus(ctx, claim.ID, models.ClaimStatusInternalReview, "race")
			if err != nil && !utils.IsValidationError(err) {
				t.Errorf("stale transition: %v", err)
			}
		}()
	}
	wg.Wait()

	loaded, err := models.GetClaim(ctx, claim.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Status != models.ClaimStatusInternalReview {
		t.Errorf("final status %s, want %s", loaded.Status, models.ClaimStatusInternalReview)
	}
	history, err := models.GetClaimHistory(ctx, claim.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("got %d history rows, want creation plus exactly one transition", len(history))
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	claim, err := models.CreateClaim(ctx, &models.NewClaim{
		ClaimType: models.ClaimTypeDamaged,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = models.ChangeClaimStatus(ctx, claim.ID, models.ClaimStatusApproved, "")
	if !utils.IsValidationError(err) {
		t.Fatalf("skipping stages should be a validation error, got %v", err)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sonia-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sonia-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=sonia_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
