package tickets

import "nesavent/internal/apperr"

var (
	ErrTicketNotFound  = apperr.New(apperr.NotFound, "ticket_not_found", "Tiket tidak ditemukan")
	ErrTicketUsed      = apperr.New(apperr.Business, "ticket_used", "Tiket sudah digunakan")
	ErrTicketExpired   = apperr.New(apperr.Business, "ticket_expired", "Tiket sudah kedaluwarsa")
	ErrInvalidQR       = apperr.New(apperr.Validation, "invalid_qr", "QR tiket tidak valid")
	ErrNotEventStaff   = apperr.New(apperr.Forbidden, "not_event_staff", "Hanya penyelenggara event yang dapat memindai tiket")
	ErrCodeUnavailable = apperr.New(apperr.Internal, "ticket_code_unavailable", "Gagal membuat kode tiket")
)
