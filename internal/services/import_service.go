package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ledgerly/internal/blob"
	"ledgerly/internal/cache"
	"ledgerly/internal/config"
	apperrors "ledgerly/internal/errors"
	"ledgerly/internal/logger"
	"ledgerly/internal/models"
	"ledgerly/internal/notify"
	"ledgerly/internal/pagination"
	"ledgerly/internal/predicate"
	"ledgerly/internal/tasks"
)

// errorWindowSize caps the row-level error list persisted on the import row.
const errorWindowSize = 100

// importService runs the CSV import pipeline: presigned client uploads into
// the blob store, streaming batched row inserts, progress events, and
// follow-up categorization and anomaly detection over the created rows.
type importService struct {
	db        *gorm.DB
	blobs     blob.Store
	cache     cache.Cache
	sink      notify.Sink
	exec      tasks.Executor
	rules     CategorizationServicer
	anomalies AnomalyServicer

	batchSize    int
	uploadExpiry time.Duration
}

// NewImportService creates a new ImportServicer.
func NewImportService(
	db *gorm.DB,
	blobs blob.Store,
	c cache.Cache,
	sink notify.Sink,
	exec tasks.Executor,
	rules CategorizationServicer,
	anomalies AnomalyServicer,
	cfg *config.Config,
) ImportServicer {
	return &importService{
		db:           db,
		blobs:        blobs,
		cache:        c,
		sink:         sink,
		exec:         exec,
		rules:        rules,
		anomalies:    anomalies,
		batchSize:    cfg.ImportBatchSize,
		uploadExpiry: cfg.UploadURLExpiry,
	}
}

// PresignUpload issues a signed PUT URL for a client-direct upload. The file
// never passes through this service.
func (s *importService) PresignUpload(userID, filename, contentType string) (*UploadTicket, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, apperrors.ErrNoFile
	}

	key := blob.UploadKey(userID, filename)
	url, err := s.blobs.SignedUploadURL(key, contentType, s.uploadExpiry)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrBlobUnavailable, err)
	}
	return &UploadTicket{
		URL:        url,
		StorageKey: key,
		ExpiresAt:  time.Now().UTC().Add(s.uploadExpiry),
	}, nil
}

// CreateImport records a pending import for an already-uploaded file and
// enqueues its processing.
func (s *importService) CreateImport(userID, filename, storageKey string, fileSize int64) (*models.CsvImport, error) {
	if strings.TrimSpace(filename) == "" || strings.TrimSpace(storageKey) == "" {
		return nil, apperrors.ErrNoFile
	}

	imp := &models.CsvImport{
		UserID:     userID,
		Filename:   filename,
		Status:     models.ImportPending,
		FileSize:   fileSize,
		StorageKey: storageKey,
		Metadata: models.ImportMetadata{
			UploadedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := s.db.Create(imp).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	importID := imp.ID
	task := tasks.Task{
		Name:       fmt.Sprintf("process_import_%s", importID),
		MaxRetries: 2,
		Run: func(ctx context.Context) error {
			err := s.Process(ctx, importID)
			if errors.Is(err, apperrors.ErrImportNotFound) {
				return tasks.Permanent(err)
			}
			return err
		},
	}
	if err := s.exec.Enqueue(task); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.sink.Publish(notify.ImportsTopic(userID), notify.Event{
		"type":      "import_queued",
		"import_id": imp.ID,
		"filename":  imp.Filename,
	})
	return imp, nil
}

// Process runs the pipeline for one import. An import that is already
// processing or completed is left alone, so duplicate triggers are no-ops.
func (s *importService) Process(ctx context.Context, importID string) error {
	var imp models.CsvImport
	if err := s.db.WithContext(ctx).First(&imp, "id = ?", importID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrImportNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if imp.Processing() || imp.Completed() {
		return nil
	}

	startedAt := time.Now().UTC()
	imp.Status = models.ImportProcessing
	imp.StartedAt = &startedAt
	if err := s.db.WithContext(ctx).Model(&imp).
		UpdateColumns(map[string]interface{}{
			"status":     models.ImportProcessing,
			"started_at": startedAt,
		}).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	data, err := s.blobs.Get(ctx, imp.StorageKey)
	if err != nil {
		s.fail(ctx, &imp, "could not fetch uploaded file")
		return tasks.Permanent(apperrors.Wrap(apperrors.ErrBlobUnavailable, err))
	}

	header, totalRows, err := scanCSV(data)
	if err != nil {
		s.fail(ctx, &imp, err.Error())
		return tasks.Permanent(apperrors.Wrap(apperrors.ErrMalformedCSV, err))
	}

	imp.TotalRows = totalRows
	if err := s.db.WithContext(ctx).Model(&imp).
		UpdateColumn("total_rows", totalRows).Error; err != nil {
		s.fail(ctx, &imp, "could not persist row count")
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	byID, byName, err := s.ownerCategories(ctx, imp.UserID)
	if err != nil {
		s.fail(ctx, &imp, "could not load categories")
		return err
	}

	createdIDs, runErr := s.streamRows(ctx, &imp, data, header, byID, byName)
	if runErr != nil {
		s.fail(ctx, &imp, runErr.Error())
		return runErr
	}

	s.complete(ctx, &imp, startedAt)

	// The blob only exists to feed the pipeline; on failure it stays for
	// inspection and reprocessing.
	if err := s.blobs.Delete(ctx, imp.StorageKey); err != nil {
		logger.Named("import").Warnw("failed to delete processed blob",
			"import_id", imp.ID, "key", imp.StorageKey, "error", err)
	}

	s.enqueueFollowUps(imp.UserID, imp.ID, createdIDs)
	return nil
}

// BulkInsertTransactions is the programmatic bulk path: same batching and
// follow-up passes as a CSV import, without a file or an import row.
func (s *importService) BulkInsertTransactions(ctx context.Context, userID string, rows []TransactionInput) ([]string, error) {
	var fields []apperrors.FieldError
	for i, row := range rows {
		if row.Amount.IsZero() {
			fields = append(fields, apperrors.FieldError{
				Field:   fmt.Sprintf("rows[%d].amount", i),
				Message: "amount must be nonzero",
			})
		}
		if row.Date.IsZero() {
			fields = append(fields, apperrors.FieldError{
				Field:   fmt.Sprintf("rows[%d].date", i),
				Message: "date is required",
			})
		}
	}
	if len(fields) > 0 {
		return nil, apperrors.NewValidation(fields)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	createdIDs := make([]string, 0, len(rows))
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := make([]models.Transaction, 0, end-start)
		for _, row := range rows[start:end] {
			batch = append(batch, models.Transaction{
				UserID:      userID,
				CategoryID:  row.CategoryID,
				Amount:      row.Amount,
				Description: strings.TrimSpace(row.Description),
				Date:        row.Date,
			})
		}
		if err := s.db.WithContext(ctx).Create(&batch).Error; err != nil {
			return createdIDs, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		for _, txn := range batch {
			createdIDs = append(createdIDs, txn.ID)
		}
	}

	s.invalidateAll(ctx, userID)

	if _, err := s.rules.BulkApply(ctx, userID, createdIDs); err != nil {
		return createdIDs, err
	}
	if _, err := s.anomalies.BulkDetect(ctx, userID, createdIDs); err != nil {
		return createdIDs, err
	}
	return createdIDs, nil
}

// GetImport retrieves one import row for its owner.
func (s *importService) GetImport(userID, importID string) (*models.CsvImport, error) {
	var imp models.CsvImport
	if err := s.db.Where("id = ? AND user_id = ?", importID, userID).First(&imp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrImportNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &imp, nil
}

// ListImports retrieves a paginated list of the owner's imports, newest first.
func (s *importService) ListImports(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.CsvImport], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.CsvImport{}).Where("user_id = ?", userID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var imports []models.CsvImport
	if err := base.Order("created_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&imports).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(imports, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// csvHeader maps the recognized column names to their positions.
type csvHeader struct {
	date        int
	amount      int
	description int
	categoryID  int
	category    int
}

// scanCSV validates the header and counts data rows in one streaming pass.
func scanCSV(data []byte) (*csvHeader, int, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	record, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("file has no readable header row")
	}

	header := &csvHeader{date: -1, amount: -1, description: -1, categoryID: -1, category: -1}
	for i, name := range record {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date":
			header.date = i
		case "amount":
			header.amount = i
		case "description":
			header.description = i
		case "category_id":
			header.categoryID = i
		case "category":
			header.category = i
		}
	}
	if header.date < 0 || header.amount < 0 {
		return nil, 0, fmt.Errorf("header must include date and amount columns")
	}

	count := 0
	for {
		_, err := reader.Read()
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if err != nil && !errors.As(err, &parseErr) {
			return nil, 0, fmt.Errorf("unreadable CSV content: %v", err)
		}
		count++
	}
	return header, count, nil
}

// streamRows is the second pass: parse, validate, and insert rows in
// batches, persisting counters and publishing progress after each batch.
// Row-level failures are recorded and never abort the run.
func (s *importService) streamRows(
	ctx context.Context,
	imp *models.CsvImport,
	data []byte,
	header *csvHeader,
	categoriesByID map[string]bool,
	categoriesByName map[string]string,
) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedCSV, err)
	}

	var createdIDs []string
	var pending []models.Transaction
	line := 1

	flush := func() error {
		if len(pending) > 0 {
			if err := s.db.WithContext(ctx).Create(&pending).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			imp.ProcessedRows += len(pending)
			for _, txn := range pending {
				createdIDs = append(createdIDs, txn.ID)
			}
			pending = pending[:0]
		}
		return s.persistProgress(ctx, imp)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				s.recordRowError(imp, fmt.Sprintf("row %d: %v", line, parseErr.Err))
				continue
			}
			return createdIDs, apperrors.Wrap(apperrors.ErrMalformedCSV, err)
		}

		input, rowErr := parseRow(record, header, categoriesByID, categoriesByName)
		if rowErr != nil {
			s.recordRowError(imp, fmt.Sprintf("row %d: %v", line, rowErr))
			continue
		}

		pending = append(pending, models.Transaction{
			UserID:      imp.UserID,
			CategoryID:  input.CategoryID,
			Amount:      input.Amount,
			Description: input.Description,
			Date:        input.Date,
		})
		if len(pending) >= s.batchSize {
			if err := flush(); err != nil {
				return createdIDs, err
			}
		}
	}

	if err := flush(); err != nil {
		return createdIDs, err
	}
	return createdIDs, nil
}

// parseRow converts one CSV record into a transaction input.
func parseRow(
	record []string,
	header *csvHeader,
	categoriesByID map[string]bool,
	categoriesByName map[string]string,
) (TransactionInput, error) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var input TransactionInput

	rawAmount := field(header.amount)
	if rawAmount == "" {
		return input, fmt.Errorf("missing amount")
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return input, fmt.Errorf("invalid amount %q", rawAmount)
	}
	if amount.IsZero() {
		return input, fmt.Errorf("amount must be nonzero")
	}
	input.Amount = amount

	rawDate := field(header.date)
	if rawDate == "" {
		return input, fmt.Errorf("missing date")
	}
	date, err := predicate.ParseDate(rawDate)
	if err != nil {
		return input, fmt.Errorf("invalid date %q", rawDate)
	}
	input.Date = date

	input.Description = field(header.description)
	if input.Description == "" {
		return input, fmt.Errorf("missing description")
	}

	if id := field(header.categoryID); id != "" {
		if !categoriesByID[id] {
			return input, fmt.Errorf("unknown category id %q", id)
		}
		input.CategoryID = &id
	} else if name := field(header.category); name != "" {
		// Unknown names are tolerated; the rule pass may still categorize.
		if id, ok := categoriesByName[strings.ToLower(name)]; ok {
			categoryID := id
			input.CategoryID = &categoryID
		}
	}
	return input, nil
}

// recordRowError bumps the error counter and appends to the rolling window.
func (s *importService) recordRowError(imp *models.CsvImport, message string) {
	imp.ErrorRows++
	imp.Metadata.Errors = append(imp.Metadata.Errors, message)
	if excess := len(imp.Metadata.Errors) - errorWindowSize; excess > 0 {
		imp.Metadata.Errors = imp.Metadata.Errors[excess:]
	}
}

// persistProgress writes the batch counters and publishes a progress event.
func (s *importService) persistProgress(ctx context.Context, imp *models.CsvImport) error {
	imp.Metadata.LastProcessedAt = time.Now().UTC().Format(time.RFC3339)
	if err := s.db.WithContext(ctx).Model(imp).
		UpdateColumns(map[string]interface{}{
			"processed_rows": imp.ProcessedRows,
			"error_rows":     imp.ErrorRows,
			"metadata":       imp.Metadata,
		}).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var rowsPerSecond float64
	if imp.StartedAt != nil {
		if elapsed := time.Since(*imp.StartedAt).Seconds(); elapsed > 0 {
			rowsPerSecond = float64(imp.ProcessedRows) / elapsed
		}
	}
	s.sink.Publish(notify.ImportsTopic(imp.UserID), notify.Event{
		"type":            "import_progress",
		"import_id":       imp.ID,
		"percentage":      imp.ProgressPercentage(),
		"processed_rows":  imp.ProcessedRows,
		"error_rows":      imp.ErrorRows,
		"total_rows":      imp.TotalRows,
		"rows_per_second": rowsPerSecond,
	})
	return nil
}

// complete moves the import to its successful terminal state.
func (s *importService) complete(ctx context.Context, imp *models.CsvImport, startedAt time.Time) {
	completedAt := time.Now().UTC()
	imp.Status = models.ImportCompleted
	imp.CompletedAt = &completedAt

	elapsed := completedAt.Sub(startedAt).Seconds()
	stats := &models.ProcessingStats{
		TotalRows:      imp.TotalRows,
		ProcessedRows:  imp.ProcessedRows,
		ErrorRows:      imp.ErrorRows,
		ProcessingTime: elapsed,
	}
	if imp.TotalRows > 0 {
		stats.SuccessRate = float64(imp.ProcessedRows) / float64(imp.TotalRows) * 100
	}
	if elapsed > 0 {
		stats.RowsPerSecond = float64(imp.ProcessedRows) / elapsed
	}
	imp.Metadata.Stats = stats

	if err := s.db.WithContext(ctx).Model(imp).
		UpdateColumns(map[string]interface{}{
			"status":         models.ImportCompleted,
			"completed_at":   completedAt,
			"processed_rows": imp.ProcessedRows,
			"error_rows":     imp.ErrorRows,
			"metadata":       imp.Metadata,
		}).Error; err != nil {
		logger.Named("import").Errorw("failed to persist completion",
			"import_id", imp.ID, "error", err)
	}

	s.invalidateAll(ctx, imp.UserID)
	s.sink.Publish(notify.ImportsTopic(imp.UserID), notify.Event{
		"type":           "import_completed",
		"import_id":      imp.ID,
		"processed_rows": imp.ProcessedRows,
		"error_rows":     imp.ErrorRows,
		"total_rows":     imp.TotalRows,
	})
}

// fail moves the import to its failed terminal state. The uploaded blob is
// kept so the run can be inspected and retried.
func (s *importService) fail(ctx context.Context, imp *models.CsvImport, message string) {
	completedAt := time.Now().UTC()
	imp.Status = models.ImportFailed
	imp.ErrorMessage = message
	imp.CompletedAt = &completedAt

	if err := s.db.WithContext(ctx).Model(imp).
		UpdateColumns(map[string]interface{}{
			"status":        models.ImportFailed,
			"error_message": message,
			"completed_at":  completedAt,
			"metadata":      imp.Metadata,
		}).Error; err != nil {
		logger.Named("import").Errorw("failed to persist failure",
			"import_id", imp.ID, "error", err)
	}

	s.sink.Publish(notify.ImportsTopic(imp.UserID), notify.Event{
		"type":      "import_failed",
		"import_id": imp.ID,
		"error":     message,
	})
}

// enqueueFollowUps schedules the categorization and anomaly passes over
// exactly the rows this import created.
func (s *importService) enqueueFollowUps(userID, importID string, createdIDs []string) {
	if len(createdIDs) == 0 {
		return
	}
	log := logger.Named("import")

	categorize := tasks.Task{
		Name:       fmt.Sprintf("categorize_import_%s", importID),
		MaxRetries: 3,
		Run: func(ctx context.Context) error {
			s.sink.Publish(notify.ImportsTopic(userID), notify.Event{
				"type":      "bulk_categorization_started",
				"import_id": importID,
			})
			count, err := s.rules.BulkApply(ctx, userID, createdIDs)
			if err != nil {
				s.sink.Publish(notify.ImportsTopic(userID), notify.Event{
					"type":      "bulk_categorization_failed",
					"import_id": importID,
				})
				return err
			}
			s.sink.Publish(notify.ImportsTopic(userID), notify.Event{
				"type":        "bulk_categorization_completed",
				"import_id":   importID,
				"categorized": count,
			})
			return nil
		},
	}
	if err := s.exec.Enqueue(categorize); err != nil {
		log.Errorw("failed to enqueue categorization pass", "import_id", importID, "error", err)
	}

	detect := tasks.Task{
		Name:       fmt.Sprintf("detect_anomalies_import_%s", importID),
		MaxRetries: 3,
		Run: func(ctx context.Context) error {
			s.sink.Publish(notify.ImportsTopic(userID), notify.Event{
				"type":      "anomaly_detection_started",
				"import_id": importID,
			})
			flagged, err := s.anomalies.BulkDetect(ctx, userID, createdIDs)
			if err != nil {
				s.sink.Publish(notify.ImportsTopic(userID), notify.Event{
					"type":      "anomaly_detection_failed",
					"import_id": importID,
				})
				return err
			}
			s.sink.Publish(notify.ImportsTopic(userID), notify.Event{
				"type":      "anomaly_detection_completed",
				"import_id": importID,
				"flagged":   flagged,
			})
			return nil
		},
	}
	if err := s.exec.Enqueue(detect); err != nil {
		log.Errorw("failed to enqueue anomaly pass", "import_id", importID, "error", err)
	}
}

// ownerCategories loads the owner's categories once per run, keyed by id and
// by lowercased name.
func (s *importService) ownerCategories(ctx context.Context, userID string) (map[string]bool, map[string]string, error) {
	var categories []models.Category
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&categories).Error; err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	byID := make(map[string]bool, len(categories))
	byName := make(map[string]string, len(categories))
	for _, c := range categories {
		byID[c.ID] = true
		byName[strings.ToLower(c.Name)] = c.ID
	}
	return byID, byName, nil
}

func (s *importService) invalidateAll(ctx context.Context, userID string) {
	if err := cache.InvalidateOwner(ctx, s.cache, userID); err != nil {
		logger.Named("import").Warnw("cache invalidation failed", "user_id", userID, "error", err)
	}
}
