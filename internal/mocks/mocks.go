// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// -- HTTP Fetch Capability Mock --

// MockHTTPFetcher mocks the schemas.HTTPFetcher interface.
type MockHTTPFetcher struct {
	mock.Mock
}

// Get honours cancellation before recording the call.
func (m *MockHTTPFetcher) Get(ctx context.Context, url string, params, headers map[string]string, timeout time.Duration) (*schemas.HTTPResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	args := m.Called(ctx, url, params, headers, timeout)
	var resp *schemas.HTTPResponse
	if r := args.Get(0); r != nil {
		resp = r.(*schemas.HTTPResponse)
	}
	return resp, args.Error(1)
}

// -- Phone Validation Capability Mock --

// MockPhoneValidator mocks the schemas.PhoneValidator interface.
type MockPhoneValidator struct {
	mock.Mock
}

func (m *MockPhoneValidator) Parse(raw, defaultRegion string) (schemas.ParsedNumber, error) {
	args := m.Called(raw, defaultRegion)
	return args.Get(0).(schemas.ParsedNumber), args.Error(1)
}

func (m *MockPhoneValidator) IsValid(n schemas.ParsedNumber) bool {
	return m.Called(n).Bool(0)
}

func (m *MockPhoneValidator) CarrierName(n schemas.ParsedNumber) string {
	return m.Called(n).String(0)
}

func (m *MockPhoneValidator) RegionDescription(n schemas.ParsedNumber) string {
	return m.Called(n).String(0)
}

func (m *MockPhoneValidator) LineType(n schemas.ParsedNumber) schemas.LineType {
	return m.Called(n).Get(0).(schemas.LineType)
}

func (m *MockPhoneValidator) CountryCodeForRegion(region string) int {
	return m.Called(region).Int(0)
}

// -- Local Source Mock --

// MockLocalSource mocks the schemas.LocalSource interface.
type MockLocalSource struct {
	mock.Mock
}

func (m *MockLocalSource) Name() string {
	return m.Called().String(0)
}

func (m *MockLocalSource) Lookup(ctx context.Context, subject schemas.SubjectIdentifier) (map[string]any, error) {
	args := m.Called(ctx, subject)
	var doc map[string]any
	if d := args.Get(0); d != nil {
		doc = d.(map[string]any)
	}
	return doc, args.Error(1)
}

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Report Generation Capability Mock --

// MockReportGenerator mocks the schemas.ReportGenerator interface.
type MockReportGenerator struct {
	mock.Mock
}

func (m *MockReportGenerator) Generate(ctx context.Context, report *schemas.ScanReport) (string, error) {
	args := m.Called(ctx, report)
	return args.String(0), args.Error(1)
}

var (
	_ schemas.HTTPFetcher     = (*MockHTTPFetcher)(nil)
	_ schemas.PhoneValidator  = (*MockPhoneValidator)(nil)
	_ schemas.LocalSource     = (*MockLocalSource)(nil)
	_ schemas.LLMClient       = (*MockLLMClient)(nil)
	_ schemas.ReportGenerator = (*MockReportGenerator)(nil)
)
