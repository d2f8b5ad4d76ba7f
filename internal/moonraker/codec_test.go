package moonraker

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEncodeSubscribe(t *testing.T) {
	codec := &Codec{}

	id, frame, err := codec.EncodeSubscribe([]string{"print_stats", "virtual_sdcard"})
	if err != nil {
		t.Fatalf("EncodeSubscribe() error = %v", err)
	}
	if id != 1 {
		t.Errorf("first correlation id = %d, want 1", id)
	}

	var req struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  struct {
			Objects map[string]any `json:"objects"`
		} `json:"params"`
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(frame, &req); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}

	if req.JSONRPC != "2.0" {
		t.Errorf("jsonrpc = %q, want 2.0", req.JSONRPC)
	}
	if req.Method != "printer.objects.subscribe" {
		t.Errorf("method = %q, want printer.objects.subscribe", req.Method)
	}
	if req.ID != id {
		t.Errorf("frame id = %d, want %d", req.ID, id)
	}
	for _, obj := range []string{"print_stats", "virtual_sdcard"} {
		if v, ok := req.Params.Objects[obj]; !ok || v != nil {
			t.Errorf("params.objects[%q] = %v (present=%v), want null", obj, v, ok)
		}
	}
}

func TestEncodeCorrelationIDsIncrease(t *testing.T) {
	codec := &Codec{}

	id1, _, _ := codec.EncodeSubscribe(SubscribedObjects)
	id2, _, _ := codec.EncodeQuery(SubscribedObjects)
	id3, _, _ := codec.EncodeSubscribe(SubscribedObjects)

	if !(id1 < id2 && id2 < id3) {
		t.Errorf("correlation ids not strictly increasing: %d, %d, %d", id1, id2, id3)
	}
}

func TestDecodeFrameStatusUpdateArrayForm(t *testing.T) {
	codec := &Codec{}
	raw := []byte(`{
		"jsonrpc": "2.0",
		"method": "notify_status_update",
		"params": [
			{
				"print_stats": {
					"state": "printing",
					"filename": "benchy.gcode",
					"print_duration": 120.5,
					"filament_used": 88.2
				},
				"virtual_sdcard": {"progress": 0.42}
			},
			3578.2
		]
	}`)

	frame, err := codec.DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if frame.Event == nil || frame.Event.Kind != KindStatusUpdate {
		t.Fatalf("frame = %+v, want status update event", frame)
	}

	status := frame.Event.Status
	if status.State == nil || *status.State != PrintStatePrinting {
		t.Errorf("state = %v, want printing", status.State)
	}
	if status.Filename == nil || *status.Filename != "benchy.gcode" {
		t.Errorf("filename = %v, want benchy.gcode", status.Filename)
	}
	if status.PrintDuration == nil || *status.PrintDuration != 120.5 {
		t.Errorf("print_duration = %v, want 120.5", status.PrintDuration)
	}
	if status.FilamentUsed == nil || *status.FilamentUsed != 88.2 {
		t.Errorf("filament_used = %v, want 88.2", status.FilamentUsed)
	}
	if status.Progress == nil || *status.Progress != 0.42 {
		t.Errorf("progress = %v, want 0.42", status.Progress)
	}
}

func TestDecodeFrameStatusUpdateDictForm(t *testing.T) {
	codec := &Codec{}
	raw := []byte(`{
		"jsonrpc": "2.0",
		"method": "notify_status_update",
		"params": {"print_stats": {"state": "paused"}}
	}`)

	frame, err := codec.DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if frame.Event.Status.State == nil || *frame.Event.Status.State != PrintStatePaused {
		t.Errorf("state = %v, want paused", frame.Event.Status.State)
	}
}

func TestDecodeFrameStripsStagingPrefix(t *testing.T) {
	codec := &Codec{}
	raw := []byte(`{
		"jsonrpc": "2.0",
		"method": "notify_status_update",
		"params": [{"print_stats": {"filename": ".cache/benchy.gcode"}}, 1.0]
	}`)

	frame, err := codec.DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if got := *frame.Event.Status.Filename; got != "benchy.gcode" {
		t.Errorf("filename = %q, want benchy.gcode", got)
	}
}

func TestDecodeFrameUnknownPrintState(t *testing.T) {
	codec := &Codec{}
	raw := []byte(`{
		"jsonrpc": "2.0",
		"method": "notify_status_update",
		"params": [{"print_stats": {"state": "levitating"}}, 1.0]
	}`)

	if _, err := codec.DecodeFrame(raw); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("DecodeFrame() error = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeFrameHistoryFinished(t *testing.T) {
	codec := &Codec{}
	raw := []byte(`{
		"jsonrpc": "2.0",
		"method": "notify_history_changed",
		"params": [{
			"action": "finished",
			"job": {
				"job_id": "00004A",
				"filename": ".cache/benchy.gcode",
				"status": "completed",
				"start_time": 1715000000.5,
				"end_time": 1715003600.5,
				"print_duration": 3400.0,
				"total_duration": 3600.0,
				"filament_used": 950.7
			}
		}]
	}`)

	frame, err := codec.DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if frame.Event == nil || frame.Event.Kind != KindHistoryChanged {
		t.Fatalf("frame = %+v, want history event", frame)
	}

	history := frame.Event.History
	if history.Action != HistoryActionFinished {
		t.Errorf("action = %q, want finished", history.Action)
	}
	job := history.Job
	if job.JobID != "00004A" {
		t.Errorf("job_id = %q, want 00004A", job.JobID)
	}
	if job.Filename != "benchy.gcode" {
		t.Errorf("filename = %q, want benchy.gcode", job.Filename)
	}
	if job.PrintDuration != 3400.0 {
		t.Errorf("print_duration = %v, want 3400", job.PrintDuration)
	}
	if want := time.Unix(1715000000, int64(500*time.Millisecond)); !job.StartTime.Equal(want) {
		t.Errorf("start_time = %v, want %v", job.StartTime, want)
	}
}

func TestDecodeFrameHistoryMissingAction(t *testing.T) {
	codec := &Codec{}
	raw := []byte(`{"jsonrpc":"2.0","method":"notify_history_changed","params":[{"job":{}}]}`)

	if _, err := codec.DecodeFrame(raw); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("DecodeFrame() error = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeFrameMalformedJSON(t *testing.T) {
	codec := &Codec{}

	if _, err := codec.DecodeFrame([]byte(`{"jsonrpc":`)); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("DecodeFrame() error = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeFrameUnknownMethod(t *testing.T) {
	codec := &Codec{}
	raw := []byte(`{"jsonrpc":"2.0","method":"notify_proc_stat_update","params":[{}]}`)

	if _, err := codec.DecodeFrame(raw); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("DecodeFrame() error = %v, want ErrUnknownMethod", err)
	}
}

func TestDecodeFrameResponse(t *testing.T) {
	codec := &Codec{}
	raw := []byte(`{"jsonrpc":"2.0","result":{"eventtime":1.0},"id":7}`)

	frame, err := codec.DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if frame.Response == nil {
		t.Fatal("frame.Response = nil, want response")
	}
	if frame.Response.ID != 7 {
		t.Errorf("response id = %d, want 7", frame.Response.ID)
	}
	if frame.Response.Err != nil {
		t.Errorf("response err = %v, want nil", frame.Response.Err)
	}
}

func TestDecodeFrameErrorResponse(t *testing.T) {
	codec := &Codec{}
	raw := []byte(`{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found"},"id":3}`)

	frame, err := codec.DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if frame.Response.Err == nil || frame.Response.Err.Code != -32601 {
		t.Errorf("response err = %v, want code -32601", frame.Response.Err)
	}
}

func TestDecodeStatusResult(t *testing.T) {
	codec := &Codec{}
	result := json.RawMessage(`{
		"eventtime": 1234.5,
		"status": {
			"print_stats": {"state": "printing", "filename": "vase.gcode"},
			"virtual_sdcard": {"progress": 0.1}
		}
	}`)

	status, err := codec.DecodeStatusResult(result)
	if err != nil {
		t.Fatalf("DecodeStatusResult() error = %v", err)
	}
	if status == nil {
		t.Fatal("status = nil, want payload")
	}
	if status.State == nil || *status.State != PrintStatePrinting {
		t.Errorf("state = %v, want printing", status.State)
	}
	if status.Filename == nil || *status.Filename != "vase.gcode" {
		t.Errorf("filename = %v, want vase.gcode", status.Filename)
	}
}

func TestDecodeStatusResultEmpty(t *testing.T) {
	codec := &Codec{}

	status, err := codec.DecodeStatusResult(nil)
	if err != nil {
		t.Fatalf("DecodeStatusResult(nil) error = %v", err)
	}
	if status != nil {
		t.Errorf("status = %+v, want nil", status)
	}

	status, err = codec.DecodeStatusResult(json.RawMessage(`{"eventtime": 1.0}`))
	if err != nil {
		t.Fatalf("DecodeStatusResult() error = %v", err)
	}
	if status != nil {
		t.Errorf("status = %+v, want nil for result without status", status)
	}
}
