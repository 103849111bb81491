package events

import "nesavent/internal/apperr"

var (
	ErrEventNotFound      = apperr.New(apperr.NotFound, "event_not_found", "Event tidak ditemukan")
	ErrNotEventOwner      = apperr.New(apperr.Forbidden, "not_event_owner", "Anda tidak memiliki akses ke event ini")
	ErrCannotCreateEvent  = apperr.New(apperr.Forbidden, "role_cannot_create_event", "Hanya mitra atau admin yang dapat membuat event")
	ErrNoTicketTypes      = apperr.New(apperr.Validation, "ticket_types_required", "Event harus memiliki minimal satu jenis tiket")
	ErrInvalidSchedule    = apperr.New(apperr.Validation, "invalid_schedule", "Tanggal selesai event tidak boleh sebelum tanggal mulai")
	ErrInvalidSaleWindow  = apperr.New(apperr.Validation, "invalid_sale_window", "Akhir penjualan tidak boleh sebelum mulai penjualan")
	ErrNegativePrice      = apperr.New(apperr.Validation, "invalid_price", "Harga tiket tidak boleh negatif")
	ErrFractionalPrice    = apperr.New(apperr.Validation, "price_not_whole_rupiah", "Harga tiket harus dalam rupiah bulat")
	ErrTicketTypeNotFound = apperr.New(apperr.NotFound, "ticket_type_not_found", "Jenis tiket tidak ditemukan pada event ini")
	ErrDuplicateTierID    = apperr.New(apperr.Validation, "duplicate_ticket_type", "Jenis tiket yang sama dikirim lebih dari sekali")
	ErrStudentTierNeedCap = apperr.New(apperr.Validation, "student_tier_requires_limit", "Tiket khusus mahasiswa wajib memiliki batas pembelian per orang")
	ErrTierHasSales       = apperr.New(apperr.Conflict, "ticket_type_has_sales", "Stok jenis tiket yang sudah terjual tidak dapat diubah atau dihapus")
	ErrEventHasOrders     = apperr.New(apperr.Conflict, "event_has_orders", "Event masih memiliki pesanan aktif")
	ErrInvalidTransition  = apperr.New(apperr.Business, "invalid_status_transition", "Perubahan status event tidak diizinkan")
)
