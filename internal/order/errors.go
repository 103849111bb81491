package order

import "nesavent/internal/apperr"

var (
	ErrEventNotFound             = apperr.New(apperr.NotFound, "event_not_found", "Event tidak ditemukan")
	ErrEventNotActive            = apperr.New(apperr.Business, "event_not_active", "Event tidak aktif")
	ErrTicketTypeNotFound        = apperr.New(apperr.NotFound, "ticket_type_not_found", "Jenis tiket tidak ditemukan")
	ErrSaleNotStarted            = apperr.New(apperr.Business, "sale_not_started", "Penjualan belum dimulai")
	ErrSaleEnded                 = apperr.New(apperr.Business, "sale_ended", "Penjualan sudah berakhir")
	ErrRoleNotAllowed            = apperr.New(apperr.Forbidden, "role_not_allowed", "Jenis tiket ini tidak tersedia untuk peran Anda")
	ErrInsufficientStock         = apperr.New(apperr.Business, "insufficient_stock", "Stok tiket tidak mencukupi")
	ErrPurchaseLimitExceeded     = apperr.New(apperr.Business, "purchase_limit_exceeded", "Jumlah pembelian melebihi batas per orang")
	ErrStudentNotVerified        = apperr.New(apperr.Forbidden, "student_not_verified", "Verifikasi mahasiswa belum disetujui")
	ErrStudentQuotaNotConfigured = apperr.New(apperr.Business, "student_quota_not_configured", "Kuota tiket mahasiswa belum diatur")
	ErrStudentQuotaExceeded      = apperr.New(apperr.Business, "student_quota_exceeded", "Kuota tiket mahasiswa untuk event ini sudah habis")
	ErrPurchaseInProgress        = apperr.New(apperr.Conflict, "purchase_in_progress", "Pesanan Anda sebelumnya masih diproses, coba lagi")
	ErrBuyerNotFound             = apperr.New(apperr.NotFound, "buyer_not_found", "Pengguna tidak ditemukan")

	ErrOrderNotFound    = apperr.New(apperr.NotFound, "order_not_found", "Pesanan tidak ditemukan")
	ErrOrderNotOwned    = apperr.New(apperr.Forbidden, "order_not_owned", "Pesanan bukan milik Anda")
	ErrOrderNotPending  = apperr.New(apperr.Business, "order_not_pending", "Pesanan sudah tidak menunggu pembayaran")
	ErrMalformedOrder   = apperr.New(apperr.Business, "malformed_order", "Data pesanan tidak lengkap")
	ErrFractionalAmount = apperr.New(apperr.Business, "amount_not_whole_rupiah", "Total pesanan harus dalam rupiah bulat")
	ErrPaymentGateway   = apperr.New(apperr.Upstream, "payment_gateway_error", "Gagal menghubungi payment gateway")
	ErrPaymentNotFree   = apperr.New(apperr.Forbidden, "payment_required", "Pesanan berbayar harus dibayar melalui payment gateway")
)
