/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package admin

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	sdkcfg "github.com/aws/aws-sdk-go-v2/config"
	sdks3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nabbar/proxycore/config"
	"github.com/nabbar/proxycore/errors"
	"github.com/nutsdb/nutsdb"
	"github.com/ulikunitz/xz"
)

// Store persists and restores snapshots. The backend is chosen per request: a flat
// xz-compressed file for the common case, an embedded nutsdb store for workers that
// checkpoint frequently, or an S3 object for workers on ephemeral hosts.
type Store struct {
	// S3Bucket enables the s3 backend when set; the SDK's default credential and
	// region chain applies.
	S3Bucket string
}

const snapshotFormat = "toml"

// nutsdb layout: one bucket, one key per document.
const (
	nutsBucket = "proxycore"
	nutsKey    = "state"
)

// Save persists a snapshot to the selected backend.
func (st *Store) Save(s Snapshot, backendKind, path string) errors.Error {
	doc, err := RenderSnapshot(s, snapshotFormat)
	if err != nil {
		return err
	}

	switch strings.ToLower(backendKind) {
	case "", "file":
		return st.saveFile(doc, path)
	case "nutsdb":
		return st.saveNuts(doc, path)
	case "s3":
		return st.saveS3(doc, path)
	default:
		return ErrorStateBackend.Error(nil)
	}
}

// Load restores a snapshot from the selected backend.
func (st *Store) Load(backendKind, path string) (Snapshot, errors.Error) {
	var (
		doc []byte
		err errors.Error
	)

	switch strings.ToLower(backendKind) {
	case "", "file":
		doc, err = st.loadFile(path)
	case "nutsdb":
		doc, err = st.loadNuts(path)
	case "s3":
		doc, err = st.loadS3(path)
	default:
		return Snapshot{}, ErrorStateBackend.Error(nil)
	}

	if err != nil {
		return Snapshot{}, err
	}

	return ParseSnapshot(doc, snapshotFormat)
}

func (st *Store) saveFile(doc []byte, path string) errors.Error {
	var buf bytes.Buffer

	w, err := xz.NewWriter(&buf)
	if err != nil {
		return ErrorStateSave.Error(err)
	}

	if _, err = w.Write(doc); err != nil {
		return ErrorStateSave.Error(err)
	}
	if err = w.Close(); err != nil {
		return ErrorStateSave.Error(err)
	}

	if err = os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return ErrorStateSave.Error(err)
	}

	return nil
}

func (st *Store) loadFile(path string) ([]byte, errors.Error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrorStateLoad.Error(err)
	}

	r, err := xz.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, ErrorStateLoad.Error(err)
	}

	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrorStateLoad.Error(err)
	}

	return doc, nil
}

func (st *Store) saveNuts(doc []byte, path string) errors.Error {
	db, err := nutsdb.Open(nutsdb.DefaultOptions, nutsdb.WithDir(path))
	if err != nil {
		return ErrorStateSave.Error(err)
	}

	defer func() {
		_ = db.Close()
	}()

	err = db.Update(func(tx *nutsdb.Tx) error {
		// bucket creation fails when it already exists; either way Put decides
		_ = tx.NewBucket(nutsdb.DataStructureBTree, nutsBucket)
		return nil
	})
	if err != nil {
		return ErrorStateSave.Error(err)
	}

	err = db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(nutsBucket, []byte(nutsKey), doc, 0)
	})
	if err != nil {
		return ErrorStateSave.Error(err)
	}

	return nil
}

func (st *Store) loadNuts(path string) ([]byte, errors.Error) {
	db, err := nutsdb.Open(nutsdb.DefaultOptions, nutsdb.WithDir(path))
	if err != nil {
		return nil, ErrorStateLoad.Error(err)
	}

	defer func() {
		_ = db.Close()
	}()

	var doc []byte

	err = db.View(func(tx *nutsdb.Tx) error {
		v, e := tx.Get(nutsBucket, []byte(nutsKey))
		if e != nil {
			return e
		}

		doc = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, ErrorStateLoad.Error(err)
	}

	return doc, nil
}

func (st *Store) saveS3(doc []byte, key string) errors.Error {
	if st.S3Bucket == "" {
		return ErrorStateBackend.Error(nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	awsCfg, err := sdkcfg.LoadDefaultConfig(ctx)
	if err != nil {
		return ErrorStateSave.Error(err)
	}

	cli := sdks3.NewFromConfig(awsCfg)

	_, err = cli.PutObject(ctx, &sdks3.PutObjectInput{
		Bucket: sdkaws.String(st.S3Bucket),
		Key:    sdkaws.String(key),
		Body:   bytes.NewReader(doc),
	})
	if err != nil {
		return ErrorStateSave.Error(err)
	}

	return nil
}

func (st *Store) loadS3(key string) ([]byte, errors.Error) {
	if st.S3Bucket == "" {
		return nil, ErrorStateBackend.Error(nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	awsCfg, err := sdkcfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, ErrorStateLoad.Error(err)
	}

	cli := sdks3.NewFromConfig(awsCfg)

	out, err := cli.GetObject(ctx, &sdks3.GetObjectInput{
		Bucket: sdkaws.String(st.S3Bucket),
		Key:    sdkaws.String(key),
	})
	if err != nil {
		return nil, ErrorStateLoad.Error(err)
	}

	defer func() {
		_ = out.Body.Close()
	}()

	doc, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, ErrorStateLoad.Error(err)
	}

	return doc, nil
}

func (p *Plane) applySaveState(req WorkerRequest) []WorkerResponse {
	cfg := struct {
		Path    string `mapstructure:"path" validate:"required"`
		Backend string `mapstructure:"backend"`
		Bucket  string `mapstructure:"bucket"`
	}{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	store := &Store{S3Bucket: cfg.Bucket}

	if err := store.Save(p.Snapshot(), cfg.Backend, cfg.Path); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	return []WorkerResponse{Ok(req.ID, "state saved")}
}

func (p *Plane) applyLoadState(req WorkerRequest) []WorkerResponse {
	cfg := struct {
		Path    string `mapstructure:"path" validate:"required"`
		Backend string `mapstructure:"backend"`
		Bucket  string `mapstructure:"bucket"`
	}{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	store := &Store{S3Bucket: cfg.Bucket}

	snap, err := store.Load(cfg.Backend, cfg.Path)
	if err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	out := []WorkerResponse{Processing(req.ID, "replaying state")}
	for _, r := range p.Replay(snap) {
		if r.Status == StatusError {
			out = append(out, Err(req.ID, errors.New(0, r.Message)))
			return out
		}
	}

	return append(out, Ok(req.ID, "state loaded"))
}
