package handlers

import (
	"testing"

	"github.com/onboardly/onboardly/internal/services"
)

func TestBookingRequestDispatch(t *testing.T) {
	tests := []struct {
		name    string
		payload bookingPayload
		want    interface{}
		wantErr bool
	}{
		{
			name:    "training",
			payload: bookingPayload{Kind: "training", MerchantID: "m-1", Date: "2026-03-02", SlotLabel: "09:00-11:00"},
			want:    services.TrainingRequest{},
		},
		{
			name:    "internal installation",
			payload: bookingPayload{Kind: "installation", InstallerType: "internal", MerchantID: "m-1", Date: "2026-03-02", SlotLabel: "14:00-16:00"},
			want:    services.InternalInstallationRequest{},
		},
		{
			name:    "installation defaults to internal",
			payload: bookingPayload{Kind: "installation", MerchantID: "m-1", Date: "2026-03-02", SlotLabel: "14:00-16:00"},
			want:    services.InternalInstallationRequest{},
		},
		{
			name:    "external installation",
			payload: bookingPayload{Kind: "installation", InstallerType: "external", MerchantID: "m-1", Address: "1 Marina Blvd"},
			want:    services.ExternalInstallationRequest{},
		},
		{
			name:    "external installation needs no slot",
			payload: bookingPayload{Kind: "installation", InstallerType: "external", MerchantID: "m-1"},
			want:    services.ExternalInstallationRequest{},
		},
		{
			name:    "training without slot rejected",
			payload: bookingPayload{Kind: "training", MerchantID: "m-1", Date: "2026-03-02"},
			wantErr: true,
		},
		{
			name:    "internal installation without date rejected",
			payload: bookingPayload{Kind: "installation", MerchantID: "m-1", SlotLabel: "14:00-16:00"},
			wantErr: true,
		},
		{
			name:    "unknown kind rejected",
			payload: bookingPayload{Kind: "repair", MerchantID: "m-1"},
			wantErr: true,
		},
		{
			name:    "unknown installer type rejected",
			payload: bookingPayload{Kind: "installation", InstallerType: "robotic", MerchantID: "m-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := bookingRequest(tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %+v", tt.payload)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			switch tt.want.(type) {
			case services.TrainingRequest:
				if _, ok := req.(services.TrainingRequest); !ok {
					t.Errorf("expected TrainingRequest, got %T", req)
				}
			case services.InternalInstallationRequest:
				if _, ok := req.(services.InternalInstallationRequest); !ok {
					t.Errorf("expected InternalInstallationRequest, got %T", req)
				}
			case services.ExternalInstallationRequest:
				if _, ok := req.(services.ExternalInstallationRequest); !ok {
					t.Errorf("expected ExternalInstallationRequest, got %T", req)
				}
			}
		})
	}
}
