package domain // export_service/domain

import "errors"

var (
	ErrInvalidExportRequest = errors.New("invalid export request")
	ErrMessageMalformed     = errors.New("export message malformed")
	ErrCatalogRead          = errors.New("catalog read failed")
	ErrMailDelivery         = errors.New("mail delivery failed")
)
