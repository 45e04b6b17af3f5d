package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"piecestream/internal/domain"
)

const testID = domain.TorrentID("0123456789abcdef0123456789abcdef01234567")

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func testMagnet() domain.TorrentSource {
	return domain.TorrentSource{Magnet: "magnet:?xt=urn:btih:" + string(testID)}
}

func TestStartDownloadCreatesRecord(t *testing.T) {
	d := newFakeDownloader()
	d.next = newFakeSession(testID, 40, 60)
	repo := newFakeRepo()
	uc := StartDownload{Downloader: d, Repo: repo, Now: func() time.Time { return testNow }}

	rec, err := uc.Execute(context.Background(), StartDownloadInput{Source: testMagnet()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.ID != testID || rec.InfoHash != domain.InfoHash(testID) {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Name != "movie" || rec.Status != domain.TorrentActive {
		t.Fatalf("name/status = %q/%s", rec.Name, rec.Status)
	}
	if rec.TotalBytes != 100 || len(rec.Files) != 2 {
		t.Fatalf("files = %+v total = %d", rec.Files, rec.TotalBytes)
	}
	if rec.SaveDir != d.next.saveDir || rec.Source != testMagnet() {
		t.Fatalf("saveDir/source = %s/%+v", rec.SaveDir, rec.Source)
	}
	if !rec.CreatedAt.Equal(testNow) {
		t.Fatalf("createdAt = %v", rec.CreatedAt)
	}
	if len(repo.created) != 1 {
		t.Fatalf("created = %d", len(repo.created))
	}
}

func TestStartDownloadPrefersGivenName(t *testing.T) {
	d := newFakeDownloader()
	d.next = newFakeSession(testID, 10)
	uc := StartDownload{Downloader: d, Repo: newFakeRepo()}

	rec, err := uc.Execute(context.Background(), StartDownloadInput{Source: testMagnet(), Name: "My Movie"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "My Movie" {
		t.Fatalf("name = %q", rec.Name)
	}
}

func TestStartDownloadUpdatesExistingRecord(t *testing.T) {
	d := newFakeDownloader()
	d.next = newFakeSession(testID, 10)
	d.next.setProgress(0, 4)
	created := testNow.Add(-time.Hour)
	repo := newFakeRepo(domain.TorrentRecord{
		ID:        testID,
		Name:      "old",
		Status:    domain.TorrentStopped,
		CreatedAt: created,
	})
	uc := StartDownload{Downloader: d, Repo: repo, Now: func() time.Time { return testNow }}

	rec, err := uc.Execute(context.Background(), StartDownloadInput{Source: testMagnet()})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "old" || !rec.CreatedAt.Equal(created) {
		t.Fatalf("existing fields lost: %+v", rec)
	}
	if rec.Status != domain.TorrentActive || rec.DoneBytes != 4 {
		t.Fatalf("status/done = %s/%d", rec.Status, rec.DoneBytes)
	}
	if len(repo.created) != 0 || len(repo.updated) != 1 {
		t.Fatalf("created=%d updated=%d", len(repo.created), len(repo.updated))
	}
}

func TestStartDownloadErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      domain.TorrentSource
		startErr error
		repoErr  error
		wantIs   []error
	}{
		{"no source", domain.TorrentSource{}, nil, nil, []error{domain.ErrInvalidSource}},
		{"both sources", domain.TorrentSource{Magnet: "m", Torrent: "t"}, nil, nil, []error{domain.ErrInvalidSource}},
		{"bad source from engine", testMagnet(), domain.ErrInvalidSource, nil, []error{domain.ErrInvalidSource}},
		{"metadata timeout", testMagnet(), domain.ErrMetadataFetchTimeout, nil, []error{ErrEngine, domain.ErrMetadataFetchTimeout}},
		{"repository down", testMagnet(), nil, errBoom, []error{ErrRepository}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := newFakeDownloader()
			d.startErr = tc.startErr
			repo := newFakeRepo()
			repo.getErr = tc.repoErr
			uc := StartDownload{Downloader: d, Repo: repo}

			_, err := uc.Execute(context.Background(), StartDownloadInput{Source: tc.src})
			for _, want := range tc.wantIs {
				if !errors.Is(err, want) {
					t.Fatalf("err = %v, want %v", err, want)
				}
			}
		})
	}
}

func TestApplyStateNeverDecreases(t *testing.T) {
	rec := domain.TorrentRecord{
		Files:      []domain.FileRef{{Index: 0, Length: 10, BytesCompleted: 8}},
		TotalBytes: 10,
		DoneBytes:  8,
	}
	state := domain.SessionState{
		Files: []domain.FileRef{{Index: 0, Length: 10, BytesCompleted: 3}},
		Stats: domain.OverallStats{DownloadedBytes: 3},
	}
	if applyState(&rec, state) {
		t.Fatal("lower progress reported as a change")
	}
	if rec.DoneBytes != 8 || rec.Files[0].BytesCompleted != 8 {
		t.Fatalf("progress regressed: %+v", rec)
	}

	state.Files[0].BytesCompleted = 10
	state.Stats.DownloadedBytes = 10
	if !applyState(&rec, state) || rec.DoneBytes != 10 || rec.Files[0].BytesCompleted != 10 {
		t.Fatalf("progress not applied: %+v", rec)
	}
}

func TestDeriveName(t *testing.T) {
	tests := []struct {
		files []domain.FileRef
		want  string
	}{
		{nil, ""},
		{[]domain.FileRef{{Path: "Show/S01/e01.mkv"}}, "Show"},
		{[]domain.FileRef{{Path: `dir\file.mkv`}}, "dir"},
		{[]domain.FileRef{{Path: "single.mkv"}}, "single.mkv"},
	}
	for _, tc := range tests {
		if got := deriveName(tc.files); got != tc.want {
			t.Fatalf("deriveName(%v) = %q, want %q", tc.files, got, tc.want)
		}
	}
}
