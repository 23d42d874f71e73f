package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"bitbattle/internal/common/cache"
	"bitbattle/internal/common/storage"
	"bitbattle/internal/common/validate"
	problemModel "bitbattle/internal/problem/model"
	problemsvc "bitbattle/internal/problem/service"
	"bitbattle/internal/sandbox"
	"bitbattle/internal/submission/model"
	appErr "bitbattle/pkg/errors"
	"bitbattle/pkg/utils/logger"
)

const (
	idempotencyKeyPrefix = "submit:idempotency:"
	rateUserKeyPrefix    = "submit:rate:user:"
	rateIPKeyPrefix      = "submit:rate:ip:"

	defaultArchivePrefix  = "submissions"
	defaultIdempotencyTTL = 10 * time.Second

	processingMarker = "processing"

	// maxErrorChars caps diagnostics relayed to clients.
	maxErrorChars = 200
)

// RoomGate is the room manager as seen from the pipeline: it vets that a
// submission belongs to a live game and receives the verdict afterwards.
// The winner decision stays with the room's own writer.
type RoomGate interface {
	CanSubmit(roomCode, username string) error
	SubmissionJudged(roomCode string, result model.SubmissionResult)
}

// RateLimitConfig holds submit throttling configuration. Zero values
// disable the corresponding counter.
type RateLimitConfig struct {
	UserMax int
	IPMax   int
	Window  time.Duration
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	Cache   time.Duration
	Storage time.Duration
}

// Config holds judge service dependencies and settings.
type Config struct {
	Problems *problemsvc.ProblemService
	Runner   *sandbox.Runner
	Pool     *sandbox.Pool
	Cache    cache.Cache

	// Storage is optional; when set, accepted sources are archived
	// best-effort after judging.
	Storage       storage.ObjectStorage
	ArchiveBucket string
	ArchivePrefix string

	// Rooms is optional; nil disables room integration (practice runs).
	Rooms RoomGate

	IdempotencyTTL time.Duration
	RateLimit      RateLimitConfig
	Timeouts       TimeoutConfig
}

// JudgeService runs submissions against hidden tests and reports verdicts.
type JudgeService struct {
	problems *problemsvc.ProblemService
	runner   *sandbox.Runner
	pool     *sandbox.Pool
	cache    cache.Cache
	storage  storage.ObjectStorage
	rooms    RoomGate

	languages      map[string]struct{}
	archiveBucket  string
	archivePrefix  string
	idempotencyTTL time.Duration
	rateLimit      RateLimitConfig
	timeouts       TimeoutConfig
}

// NewJudgeService creates a new judge service.
func NewJudgeService(cfg Config) (*JudgeService, error) {
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem service is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("sandbox runner is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("sandbox pool is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = defaultArchivePrefix
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	languages := make(map[string]struct{})
	for _, id := range cfg.Runner.Languages() {
		languages[id] = struct{}{}
	}
	return &JudgeService{
		problems:       cfg.Problems,
		runner:         cfg.Runner,
		pool:           cfg.Pool,
		cache:          cfg.Cache,
		storage:        cfg.Storage,
		rooms:          cfg.Rooms,
		languages:      languages,
		archiveBucket:  cfg.ArchiveBucket,
		archivePrefix:  cfg.ArchivePrefix,
		idempotencyTTL: cfg.IdempotencyTTL,
		rateLimit:      cfg.RateLimit,
		timeouts:       cfg.Timeouts,
	}, nil
}

// Judge validates a submission, runs every hidden test and returns the full
// verdict. Each test feeds its input on stdin and compares the trimmed
// stdout byte-exact against the expected output. All tests are always run;
// there is no stop-on-first-fail so clients see complete diagnostics.
func (s *JudgeService) Judge(ctx context.Context, req model.SubmissionRequest, clientIP string) (model.SubmissionResult, error) {
	req, err := s.normalizeRequest(req)
	if err != nil {
		return model.SubmissionResult{}, err
	}

	problem, err := s.problems.Get(ctx, req.ProblemID)
	if err != nil {
		return model.SubmissionResult{}, err
	}

	if req.RoomID != "" && s.rooms != nil {
		if err := s.rooms.CanSubmit(req.RoomID, req.Username); err != nil {
			return model.SubmissionResult{}, err
		}
	}

	if err := s.checkRateLimit(ctx, req.Username, clientIP); err != nil {
		return model.SubmissionResult{}, err
	}

	cacheKey := idempotencyKeyPrefix + submissionFingerprint(req)
	release, replay, err := s.acquireIdempotency(ctx, cacheKey)
	if err != nil {
		return model.SubmissionResult{}, err
	}
	if replay != nil {
		// A retry inside the window gets the stored verdict back; the room
		// already saw it the first time.
		return *replay, nil
	}

	// The request context dies with the client connection, but a running
	// submission must still finish and reach the room. The sandbox's own
	// wall clocks bound the detached run.
	judgeCtx := context.WithoutCancel(ctx)
	result, err := s.execute(judgeCtx, req, problem)
	if err != nil {
		// Nothing was judged; let an identical retry through.
		release()
		return model.SubmissionResult{}, err
	}
	s.storeVerdict(judgeCtx, cacheKey, result)

	s.archiveSource(judgeCtx, req)
	if req.RoomID != "" && s.rooms != nil {
		s.rooms.SubmissionJudged(req.RoomID, result)
	}

	logger.Info(ctx, "submission judged",
		zap.String("username", req.Username),
		zap.String("problem_id", req.ProblemID),
		zap.String("language", req.Language),
		zap.String("room_id", req.RoomID),
		zap.Bool("passed", result.Passed),
		zap.Int("passed_tests", result.PassedTests),
		zap.Int("total_tests", result.TotalTests),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs))
	return result, nil
}

// Languages lists the language IDs accepted on submit.
func (s *JudgeService) Languages() []string {
	return s.runner.Languages()
}

func (s *JudgeService) normalizeRequest(req model.SubmissionRequest) (model.SubmissionRequest, error) {
	username, err := validate.Username(req.Username)
	if err != nil {
		return req, err
	}
	req.Username = username

	problemID, err := validate.ProblemID(req.ProblemID)
	if err != nil {
		return req, err
	}
	req.ProblemID = problemID

	if err := validate.Code(req.Code); err != nil {
		return req, err
	}

	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		return req, appErr.ValidationError("language", "required")
	}
	if _, ok := s.languages[language]; !ok {
		return req, appErr.Newf(appErr.LanguageNotSupported, "language not supported: %s", language)
	}
	req.Language = language

	if req.RoomID != "" {
		roomCode, err := validate.RoomCode(req.RoomID)
		if err != nil {
			return req, err
		}
		req.RoomID = roomCode
	}
	return req, nil
}

// execute owns a sandbox slot for the whole submission so the per-test runs
// within it stay sequential.
func (s *JudgeService) execute(ctx context.Context, req model.SubmissionRequest, problem problemModel.Problem) (model.SubmissionResult, error) {
	if err := s.pool.Acquire(ctx); err != nil {
		return model.SubmissionResult{}, err
	}
	defer s.pool.Release()

	exec, err := s.runner.Prepare(ctx, runID(req), req.Language, req.Code)
	if err != nil {
		if appErr.Is(err, appErr.CompilationError) {
			return compileFailureResult(req, problem, compileMessage(err)), nil
		}
		return model.SubmissionResult{}, err
	}
	defer exec.Close()

	results := make([]model.TestResult, 0, len(problem.HiddenTests))
	passedTests := 0
	var totalMs int64
	for _, tc := range problem.HiddenTests {
		tr := s.runTest(ctx, exec, tc)
		if tr.Passed {
			passedTests++
		}
		totalMs += tr.ExecutionTimeMs
		results = append(results, tr)
	}

	return model.SubmissionResult{
		Username:        req.Username,
		ProblemID:       req.ProblemID,
		Passed:          len(results) > 0 && passedTests == len(results),
		TotalTests:      len(results),
		PassedTests:     passedTests,
		TestResults:     results,
		ExecutionTimeMs: totalMs,
		SubmissionTime:  time.Now().Unix(),
		Language:        req.Language,
	}, nil
}

func (s *JudgeService) runTest(ctx context.Context, exec *sandbox.Execution, tc problemModel.TestCase) model.TestResult {
	tr := model.TestResult{
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
	}

	run, err := exec.RunTest(ctx, tc.Input)
	tr.ExecutionTimeMs = run.DurationMs
	if err != nil {
		logger.Warn(ctx, "sandbox run failed", zap.Error(err))
		tr.Error = "Execution failed. Check your code for errors."
		return tr
	}

	switch {
	case run.TimedOut:
		tr.Error = fmt.Sprintf("Execution timeout (%d seconds)", exec.Limits().WallTimeMs/1000)
	case run.OOMKilled:
		tr.Error = "Memory limit exceeded"
	case run.ExitCode != 0:
		tr.Error = cleanError(run.Stderr, false)
	default:
		tr.ActualOutput = strings.TrimSpace(run.Stdout)
		tr.Passed = tr.ActualOutput == strings.TrimSpace(tc.ExpectedOutput)
	}
	return tr
}

func (s *JudgeService) checkRateLimit(ctx context.Context, username, clientIP string) error {
	if s.rateLimit.Window <= 0 || (s.rateLimit.UserMax <= 0 && s.rateLimit.IPMax <= 0) {
		return nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	if s.rateLimit.UserMax > 0 && username != "" {
		if err := s.checkRateCounter(ctxCache.ctx, rateUserKeyPrefix+username, s.rateLimit.UserMax); err != nil {
			return err
		}
	}
	if s.rateLimit.IPMax > 0 && clientIP != "" {
		if err := s.checkRateCounter(ctxCache.ctx, rateIPKeyPrefix+clientIP, s.rateLimit.IPMax); err != nil {
			return err
		}
	}
	return nil
}

func (s *JudgeService) checkRateCounter(ctx context.Context, key string, max int) error {
	count, err := s.cache.Incr(ctx, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if count == 1 {
		_ = s.cache.Expire(ctx, key, s.rateLimit.Window)
	}
	if int(count) > max {
		return appErr.New(appErr.SubmitTooFrequently)
	}
	return nil
}

// acquireIdempotency reserves a short window for one exact submission so
// double-clicks do not burn two sandbox slots. A duplicate whose first run
// already finished gets that verdict back as a replay; one still judging is
// rejected. The returned release func clears the reservation when judging
// never happened.
func (s *JudgeService) acquireIdempotency(ctx context.Context, cacheKey string) (func(), *model.SubmissionResult, error) {
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	ok, err := s.cache.SetNX(ctxCache.ctx, cacheKey, processingMarker, s.idempotencyTTL)
	if err != nil {
		return nil, nil, appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if !ok {
		if stored, err := s.cache.Get(ctxCache.ctx, cacheKey); err == nil && stored != "" && stored != processingMarker {
			var replay model.SubmissionResult
			if jsonErr := json.Unmarshal([]byte(stored), &replay); jsonErr == nil {
				return nil, &replay, nil
			}
		}
		return nil, nil, appErr.New(appErr.DuplicateSubmission)
	}
	release := func() {
		ctxDel := withTimeout(ctx, s.timeouts.Cache)
		defer ctxDel.cancel()
		if err := s.cache.Del(ctxDel.ctx, cacheKey); err != nil {
			logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
		}
	}
	return release, nil, nil
}

// storeVerdict swaps the processing marker for the finished result so a
// retry within the window replays it. Best-effort; losing it only costs the
// retry a DuplicateSubmission.
func (s *JudgeService) storeVerdict(ctx context.Context, cacheKey string, result model.SubmissionResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Warn(ctx, "marshal verdict for replay failed", zap.Error(err))
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, cacheKey, string(payload), s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "store verdict for replay failed", zap.Error(err))
	}
}

func (s *JudgeService) archiveSource(ctx context.Context, req model.SubmissionRequest) {
	if s.storage == nil || s.archiveBucket == "" {
		return
	}
	objectKey := fmt.Sprintf("%s/%s/source.code", s.archivePrefix, runID(req))
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	err := s.storage.PutObject(ctxStorage.ctx, s.archiveBucket, objectKey,
		strings.NewReader(req.Code), int64(len(req.Code)), "text/plain; charset=utf-8")
	if err != nil {
		logger.Warn(ctx, "archive submission source failed",
			zap.String("object_key", objectKey), zap.Error(err))
	}
}

// runID doubles as the sandbox work directory name and the archive key, so
// identical submissions overwrite rather than accumulate.
func runID(req model.SubmissionRequest) string {
	return submissionFingerprint(req)
}

func submissionFingerprint(req model.SubmissionRequest) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{req.Username, req.ProblemID, req.RoomID, req.Code}, "\x00")))
	return hex.EncodeToString(sum[:])
}

func compileFailureResult(req model.SubmissionRequest, problem problemModel.Problem, msg string) model.SubmissionResult {
	results := make([]model.TestResult, 0, len(problem.HiddenTests))
	for _, tc := range problem.HiddenTests {
		results = append(results, model.TestResult{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Error:          msg,
		})
	}
	return model.SubmissionResult{
		Username:       req.Username,
		ProblemID:      req.ProblemID,
		TotalTests:     len(results),
		TestResults:    results,
		SubmissionTime: time.Now().Unix(),
		Language:       req.Language,
	}
}

func compileMessage(err error) string {
	msg := "Compilation failed with no error output."
	if e := appErr.GetError(err); e != nil && e.Message != "" {
		msg = e.Message
	}
	return cleanError(msg, true)
}

// sourceLinePrefixes maps sandbox file names back to plain line references
// in diagnostics shown to players.
var sourceLinePrefixes = []string{
	"solution.js:",
	"solution.py:",
	"solution.c:",
	"solution.cpp:",
	"solution.rs:",
	"solution.go:",
	"Solution.java:",
}

// cleanError picks the most relevant line out of raw stderr and hides
// sandbox file paths from it.
func cleanError(stderr string, compiled bool) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		if compiled {
			return "Compilation failed with no error output."
		}
		return "Execution failed with no error output."
	}

	for _, line := range strings.Split(stderr, "\n") {
		if !containsErrorMarker(line) {
			continue
		}
		for _, prefix := range sourceLinePrefixes {
			line = strings.ReplaceAll(line, prefix, "Line ")
		}
		return truncateError(strings.TrimSpace(line))
	}
	return truncateError(stderr)
}

func containsErrorMarker(line string) bool {
	for _, marker := range []string{"error", "Error", "SyntaxError", "TypeError", "ReferenceError", "Exception"} {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func truncateError(s string) string {
	if len(s) <= maxErrorChars {
		return s
	}
	cut := s[:maxErrorChars]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
