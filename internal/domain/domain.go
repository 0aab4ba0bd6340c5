package domain

import (
	"github.com/papervault/papervault-backend/internal/domain/entities"
	"github.com/papervault/papervault-backend/internal/domain/files"
	"github.com/papervault/papervault-backend/internal/domain/imports"
	"github.com/papervault/papervault-backend/internal/domain/jobs"
	"github.com/papervault/papervault-backend/internal/domain/merchants"
	"github.com/papervault/papervault-backend/internal/domain/tags"
)

// Aggregator so callers can import a single types package.

type (
	File       = files.File
	FileType   = files.FileType
	FileStatus = files.FileStatus

	EntityKind = entities.EntityKind
	EntityRef  = entities.EntityRef

	Receipt         = entities.Receipt
	LineItem        = entities.LineItem
	Document        = entities.Document
	Invoice         = entities.Invoice
	InvoiceLineItem = entities.InvoiceLineItem
	Contract        = entities.Contract
	Voucher         = entities.Voucher
	Warranty        = entities.Warranty
	BankStatement   = entities.BankStatement
	BankTransaction = entities.BankTransaction
	ReturnPolicy    = entities.ReturnPolicy
	ExtractionLink  = entities.ExtractionLink

	Merchant     = merchants.Merchant
	Tag          = tags.Tag
	EntityTag    = tags.EntityTag
	ImportSource = imports.ImportSource
	ImportStatus = imports.ImportStatus

	JobRun          = jobs.JobRun
	JobStageHistory = jobs.JobStageHistory
)

const (
	FileTypeReceipt  = files.FileTypeReceipt
	FileTypeDocument = files.FileTypeDocument

	FileStatusPending    = files.FileStatusPending
	FileStatusProcessing = files.FileStatusProcessing
	FileStatusCompleted  = files.FileStatusCompleted
	FileStatusFailed     = files.FileStatusFailed

	KindReceipt         = entities.KindReceipt
	KindDocument        = entities.KindDocument
	KindInvoice         = entities.KindInvoice
	KindContract        = entities.KindContract
	KindVoucher         = entities.KindVoucher
	KindWarranty        = entities.KindWarranty
	KindBankStatement   = entities.KindBankStatement
	KindReturnPolicy    = entities.KindReturnPolicy
	KindLineItem        = entities.KindLineItem
	KindInvoiceLineItem = entities.KindInvoiceLineItem
	KindBankTransaction = entities.KindBankTransaction
	KindExtractionLink  = entities.KindExtractionLink

	DeletedReasonReprocess     = entities.DeletedReasonReprocess
	DeletedReasonUserDelete    = entities.DeletedReasonUserDelete
	DeletedReasonAccountDelete = entities.DeletedReasonAccountDelete

	JobStatusQueued    = jobs.JobStatusQueued
	JobStatusRunning   = jobs.JobStatusRunning
	JobStatusSucceeded = jobs.JobStatusSucceeded
	JobStatusFailed    = jobs.JobStatusFailed
	JobStatusCanceled  = jobs.JobStatusCanceled

	StageHistoryRunning   = jobs.StageHistoryRunning
	StageHistorySucceeded = jobs.StageHistorySucceeded
	StageHistoryFailed    = jobs.StageHistoryFailed

	ImportStatusPending   = imports.ImportStatusPending
	ImportStatusPartial   = imports.ImportStatusPartial
	ImportStatusCompleted = imports.ImportStatusCompleted
	ImportStatusFailed    = imports.ImportStatusFailed
)

var (
	ChildKinds  = entities.ChildKinds
	ParentKinds = entities.ParentKinds
)
