// Package bucketseq provides an LSTM sequence classifier over
// variable-length integer token sequences, trained with bucketed batching:
// sequences are padded into fixed-length buckets and one computation graph
// is compiled per bucket length, all sharing a single parameter store.
//
// Quick start:
//
//	clf, err := bucketseq.New(
//	    bucketseq.WithVocabSize(vocab.Size()),
//	    bucketseq.WithNumClasses(2),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer clf.Close()
//
//	it, _ := bucketseq.NewBucketIter(seqs, labels)
//	if err := clf.Initialize(it); err != nil {
//	    log.Fatal(err)
//	}
//	if err := clf.TrainEpochs(it, nil, 10); err != nil {
//	    log.Fatal(err)
//	}
//	preds, _, _ := clf.Predict(testSeqs, 32)
//
// A Classifier is not safe for concurrent use; train and predict from a
// single goroutine.
package bucketseq
