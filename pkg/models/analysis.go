package models

import (
	"math"
	"time"
)

// Analysis statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Upload size limits in bytes
const (
	MinUploadSize = 1000
	MaxUploadSize = 20 * 1024 * 1024
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Body struct {
		Status  string    `json:"status" example:"healthy" doc:"Service health status"`
		Version string    `json:"version" example:"1.0.0" doc:"API version"`
		Time    time.Time `json:"time" doc:"Current server time"`
	}
}

// BandRT60 is the wire form of an RT60Result. Indeterminate values are null.
type BandRT60 struct {
	Band       BandName `json:"band" doc:"Band name"`
	LowHz      float64  `json:"low_hz" doc:"Lower band edge in Hz"`
	HighHz     float64  `json:"high_hz" doc:"Upper band edge in Hz"`
	Seconds    *float64 `json:"seconds" doc:"Reverberation time in seconds, null when indeterminate"`
	Valid      bool     `json:"valid" doc:"Whether a decay could be measured"`
	FitErrorDb *float64 `json:"fit_error_db" doc:"RMS residual of the decay fit in dB"`
	RangeDb    float64  `json:"range_db" doc:"Depth of the fitted decay segment in dB"`
	Reason     string   `json:"reason,omitempty" enum:"no_signal,insufficient_decay_range,not_decaying" doc:"Why the band is indeterminate"`
}

// NewBandRT60 converts r to its wire form.
func NewBandRT60(r RT60Result) BandRT60 {
	return BandRT60{
		Band:       r.Band.Name,
		LowHz:      r.Band.LowHz,
		HighHz:     r.Band.HighHz,
		Seconds:    finite(r.Seconds, r.Valid),
		Valid:      r.Valid,
		FitErrorDb: finite(r.FitErrorDb, true),
		RangeDb:    r.RangeDb,
		Reason:     r.Reason,
	}
}

func finite(v float64, ok bool) *float64 {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// AnalysisReport is the serializable summary of an AnalysisResult.
type AnalysisReport struct {
	DurationSec    float64          `json:"duration_sec" doc:"Clip duration in seconds"`
	SampleRate     int              `json:"sample_rate" doc:"Analysis sample rate in Hz"`
	Format         string           `json:"format" doc:"Detected container format"`
	SourceChannels int              `json:"source_channels" doc:"Channel count before downmix"`
	Bands          []BandRT60       `json:"bands" doc:"RT60 per band, in band order"`
	Resonance      ResonancePeak    `json:"resonance" doc:"Dominant resonant frequency"`
	FrequencyData  []FrequencyPoint `json:"frequency_data" doc:"Frequency response data"`
}

// NewAnalysisReport summarizes r for clients.
func NewAnalysisReport(r *AnalysisResult) AnalysisReport {
	report := AnalysisReport{
		Resonance:     r.Resonance,
		FrequencyData: r.FrequencyResponse,
		Bands:         make([]BandRT60, 0, len(r.Bands)),
	}
	if r.Clip != nil {
		report.DurationSec = r.Clip.Duration()
		report.SampleRate = r.Clip.SampleRateHz
		report.Format = r.Clip.Format
		report.SourceChannels = r.Clip.SourceChannels
	}
	for _, b := range r.Bands {
		report.Bands = append(report.Bands, NewBandRT60(b))
	}
	return report
}

// AnalyzeUploadRequest carries a raw audio file for synchronous analysis
type AnalyzeUploadRequest struct {
	Filename string `query:"filename" doc:"Original file name, used when the format cannot be sniffed"`
	RawBody  []byte
}

// AnalyzeUploadResponse returns the analysis of an uploaded file
type AnalyzeUploadResponse struct {
	Body AnalysisReport
}

// CreateAnalysisRequestBody is the body of a create analysis request
type CreateAnalysisRequestBody struct {
	SessionID string `json:"session_id" minLength:"10" maxLength:"50" required:"true" doc:"Client session identifier"`
	FileSize  int64  `json:"file_size" minimum:"1000" maximum:"20971520" required:"true" doc:"Audio file size in bytes"`
	MimeType  string `json:"mime_type" enum:"audio/wav,audio/x-wav,audio/aiff,audio/mpeg,audio/ogg" required:"true" doc:"Audio file MIME type"`
	SignalID  string `json:"signal_id,omitempty" doc:"Excitation signal identifier (e.g., 'balloon_pop', 'clap')"`
}

// CreateAnalysisRequest represents a request to create a new analysis
type CreateAnalysisRequest struct {
	Body CreateAnalysisRequestBody
}

// CreateAnalysisResponseBody is the body of the create analysis response
type CreateAnalysisResponseBody struct {
	ID        string `json:"id" doc:"Analysis unique identifier"`
	UploadURL string `json:"upload_url" doc:"Pre-signed upload URL, or the server upload path"`
	ExpiresIn int    `json:"expires_in" doc:"URL expiration time in seconds"`
}

// CreateAnalysisResponse represents the response from creating an analysis
type CreateAnalysisResponse struct {
	Body CreateAnalysisResponseBody
}

// UploadAudioRequest carries audio bytes for an existing analysis
type UploadAudioRequest struct {
	ID          string `path:"id" doc:"Analysis ID"`
	ContentType string `header:"Content-Type" doc:"Audio MIME type"`
	RawBody     []byte
}

// UploadAudioResponseBody is the body of the upload response
type UploadAudioResponseBody struct {
	Message string `json:"message" doc:"Confirmation message"`
	Size    int    `json:"size" doc:"Stored size in bytes"`
}

// UploadAudioResponse confirms a server-side upload
type UploadAudioResponse struct {
	Body UploadAudioResponseBody
}

// GetAnalysisStatusRequest represents a request to get analysis status
type GetAnalysisStatusRequest struct {
	ID string `path:"id" doc:"Analysis ID"`
}

// GetAnalysisStatusResponseBody is the body of the status response
type GetAnalysisStatusResponseBody struct {
	ID        string  `json:"id" doc:"Analysis ID"`
	Status    string  `json:"status" enum:"pending,processing,completed,failed" doc:"Analysis status"`
	Progress  int     `json:"progress" minimum:"0" maximum:"100" doc:"Analysis progress percentage"`
	Message   string  `json:"message,omitempty" doc:"Human-readable status message"`
	Error     *string `json:"error,omitempty" doc:"Failure reason when status is failed"`
	ResultsID *string `json:"results_id,omitempty" doc:"Results ID when analysis completes"`
}

// GetAnalysisStatusResponse represents the current status of an analysis
type GetAnalysisStatusResponse struct {
	Body GetAnalysisStatusResponseBody
}

// GetAnalysisResultsRequest represents a request to get analysis results
type GetAnalysisResultsRequest struct {
	ID string `path:"id" doc:"Analysis ID"`
}

// GetAnalysisResultsResponseBody is the body of the results response
type GetAnalysisResultsResponseBody struct {
	ID            string           `json:"id" doc:"Results ID"`
	AnalysisID    string           `json:"analysis_id" doc:"Analysis ID"`
	DurationSec   float64          `json:"duration_sec" doc:"Clip duration in seconds"`
	SampleRate    int              `json:"sample_rate" doc:"Analysis sample rate in Hz"`
	RT60          *float64         `json:"rt60,omitempty" doc:"Mid band reverberation time in seconds"`
	Bands         []BandRT60       `json:"bands" doc:"RT60 per band"`
	Resonance     ResonancePeak    `json:"resonance" doc:"Dominant resonant frequency"`
	FrequencyData []FrequencyPoint `json:"frequency_data" doc:"Frequency response data"`
	RoomModes     []float64        `json:"room_modes,omitempty" doc:"Predicted axial room mode frequencies in Hz"`
	RoomInfo      *RoomInfo        `json:"room_info,omitempty" doc:"Room configuration details"`
	CreatedAt     time.Time        `json:"created_at" doc:"Analysis creation timestamp"`
}

// GetAnalysisResultsResponse represents the complete analysis results
type GetAnalysisResultsResponse struct {
	Body GetAnalysisResultsResponseBody
}

// StartProcessingRequest represents a request to start processing an uploaded file
type StartProcessingRequest struct {
	ID string `path:"id" doc:"Analysis ID"`
}

// StartProcessingResponse represents the response from starting processing
type StartProcessingResponse struct {
	Body struct {
		Message string `json:"message" doc:"Confirmation message"`
	}
}

// RoomInfo represents room configuration information
type RoomInfo struct {
	ID         string `json:"id" doc:"Room info unique identifier"`
	AnalysisID string `json:"analysis_id" doc:"Associated analysis ID"`

	// Room dimensions for acoustic analysis
	RoomLength float64 `json:"room_length" doc:"Room length in meters"`
	RoomWidth  float64 `json:"room_width" doc:"Room width in meters"`
	RoomHeight float64 `json:"room_height" doc:"Room height in meters"`

	FloorType       string `json:"floor_type,omitempty" enum:"carpet,hardwood,tile,rug_on_hard,concrete" doc:"Floor material type"`
	AdditionalNotes string `json:"additional_notes,omitempty" maxLength:"500" doc:"Additional room notes"`

	CreatedAt time.Time `json:"created_at" doc:"When room info was added"`
}

// RoomInfoInput is the client-supplied part of RoomInfo
type RoomInfoInput struct {
	RoomLength      float64 `json:"room_length" minimum:"0.5" maximum:"200" required:"true" doc:"Room length in meters"`
	RoomWidth       float64 `json:"room_width" minimum:"0.5" maximum:"200" required:"true" doc:"Room width in meters"`
	RoomHeight      float64 `json:"room_height" minimum:"0.5" maximum:"50" required:"true" doc:"Room height in meters"`
	FloorType       string  `json:"floor_type,omitempty" enum:"carpet,hardwood,tile,rug_on_hard,concrete" doc:"Floor material type"`
	AdditionalNotes string  `json:"additional_notes,omitempty" maxLength:"500" doc:"Additional room notes"`
}

// AddRoomInfoRequest represents a request to add room information to an analysis
type AddRoomInfoRequest struct {
	ID   string `path:"id" doc:"Analysis ID"`
	Body RoomInfoInput
}

// AddRoomInfoResponse represents the response from adding room information
type AddRoomInfoResponse struct {
	Body *RoomInfo
}

// ListSessionAnalysesRequest lists the analyses of a session
type ListSessionAnalysesRequest struct {
	SessionID string `path:"sessionID" doc:"Client session identifier"`
}

// ListSessionAnalysesResponse returns the analyses of a session, newest first
type ListSessionAnalysesResponse struct {
	Body struct {
		Analyses []*Analysis `json:"analyses" doc:"Analyses, newest first"`
	}
}

// Analysis represents the core analysis entity (for internal use)
type Analysis struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	SignalID    string     `json:"signal_id,omitempty"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	AudioS3Key  *string    `json:"audio_s3_key,omitempty"`
	ErrorMsg    *string    `json:"error_message,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AnalysisResults represents the stored analysis results
type AnalysisResults struct {
	ID            string           `json:"id"`
	AnalysisID    string           `json:"analysis_id"`
	DurationSec   float64          `json:"duration_sec"`
	SampleRate    int              `json:"sample_rate"`
	RT60          *float64         `json:"rt60,omitempty"`
	Bands         []BandRT60       `json:"bands"`
	Resonance     ResonancePeak    `json:"resonance"`
	FrequencyData []FrequencyPoint `json:"frequency_data"`
	RoomModes     []float64        `json:"room_modes,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
