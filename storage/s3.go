package storage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// S3 is an implementation of Store backed by AWS S3. Keys are hex-encoded
// and stored under a common prefix, so that several services can share a
// bucket.
type S3 struct {
	profile string
	region  string
	bucket  string
	prefix  string

	mu     sync.Mutex
	client *s3.S3

	// Nil means unthrottled.
	limiter *rate.Limiter
}

// NewS3 returns a Store that keeps its pairs in the given bucket, under the
// given prefix. If requestsPerSecond is positive, requests are throttled on
// our side rather than having S3 reject them.
func NewS3(profile, region, bucket, prefix string, requestsPerSecond float64) *S3 {
	s := &S3{
		profile: profile,
		region:  region,
		bucket:  bucket,
		prefix:  prefix,
	}
	if requestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return s
}

func (s *S3) Get(key []byte) (value []byte, err error) {
	if err := s.ensureClient(); err != nil {
		return nil, err
	}
	objectKey := s.objectKey(key)
	s.wait()
	output, err := s.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%.40q: %w", key, ErrNotFound)
		}
		return nil, err
	}
	defer func() {
		if err := output.Body.Close(); err != nil {
			log.WithFields(log.Fields{
				"op":  "get",
				"key": objectKey,
			}).Warning("Could not close response body")
		}
	}()
	return ioutil.ReadAll(output.Body)
}

func (s *S3) Put(key, value []byte) (err error) {
	err = s.ensureClient()
	if err == nil {
		s.wait()
		_, err = s.client.PutObject(&s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
			Body:   bytes.NewReader(value),
		})
	}
	return
}

// Delete checks for existence first, because S3 deletes of missing objects
// succeed.
func (s *S3) Delete(key []byte) error {
	if err := s.ensureClient(); err != nil {
		return err
	}
	objectKey := s.objectKey(key)
	s.wait()
	_, err := s.client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%.40q: %w", key, ErrNotFound)
		}
		return err
	}
	s.wait()
	_, err = s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	return err
}

func (s *S3) Keys(prefix []byte) (keys [][]byte, err error) {
	if err := s.ensureClient(); err != nil {
		return nil, err
	}
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.objectKey(prefix)),
	}
	var decodeErr error
	s.wait()
	err = s.client.ListObjectsV2Pages(input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, object := range page.Contents {
			key, err := hex.DecodeString(aws.StringValue(object.Key)[len(s.prefix):])
			if err != nil {
				decodeErr = fmt.Errorf("%q: unexpected object in bucket %q: %w", aws.StringValue(object.Key), s.bucket, err)
				return false
			}
			keys = append(keys, key)
		}
		if !lastPage {
			s.wait()
		}
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
	return keys, nil
}

func (s *S3) objectKey(key []byte) string {
	return s.prefix + hex.EncodeToString(key)
}

func (s *S3) wait() {
	if s.limiter == nil {
		return
	}
	time.Sleep(s.limiter.Reserve().Delay())
}

func (s *S3) ensureClient() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(s.region),
		Credentials: credentials.NewSharedCredentials("", s.profile),
	})
	if err != nil {
		return err
	}
	s.client = s3.New(sess)
	return nil
}

func isNotFound(err error) bool {
	if rfErr, ok := err.(awserr.RequestFailure); ok {
		return rfErr.StatusCode() == http.StatusNotFound
	}
	return false
}
